// Package services implements the use cases behind the HTTP and CLI
// surfaces. Every error a service returns is classified.
package services

import (
	"errors"

	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
)

// ServiceConfig provides common configuration for all services
type ServiceConfig struct {
	Logger  observability.Logger
	Metrics observability.MetricsClient
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Logger == nil {
		c.Logger = observability.NewNoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NewNoopMetricsClient()
	}
	return c
}

// classify maps repository errors onto the error taxonomy
func classify(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(op, resource)
	}
	return apperrors.NewInternalError(op, err)
}
