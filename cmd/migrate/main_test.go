package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

type fakeMigrator struct {
	version    uint
	versionErr error
	downErr    error
	downCalls  int
}

func (f *fakeMigrator) Down(context.Context) error {
	f.downCalls++
	return f.downErr
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, false, f.versionErr
}

func TestRollback(t *testing.T) {
	logger := observability.NewNoopLogger()

	t.Run("Requires confirmation", func(t *testing.T) {
		m := &fakeMigrator{version: 3}
		err := rollback(context.Background(), m, "yes", logger)
		assert.ErrorIs(t, err, errDownNotConfirmed)
		assert.Zero(t, m.downCalls)
	})

	t.Run("Confirmed", func(t *testing.T) {
		m := &fakeMigrator{version: 3}
		require.NoError(t, rollback(context.Background(), m, downConfirmation, logger))
		assert.Equal(t, 1, m.downCalls)
	})

	t.Run("Version failure stops before rolling back", func(t *testing.T) {
		m := &fakeMigrator{versionErr: errors.New("connection refused")}
		assert.Error(t, rollback(context.Background(), m, downConfirmation, logger))
		assert.Zero(t, m.downCalls)
	})

	t.Run("Down failure is returned", func(t *testing.T) {
		m := &fakeMigrator{version: 3, downErr: errors.New("dirty database version 2")}
		err := rollback(context.Background(), m, downConfirmation, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dirty database version 2")
	})
}
