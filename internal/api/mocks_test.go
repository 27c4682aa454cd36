package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
	"github.com/developer-mesh/style-guide-service/pkg/services"
)

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Get(ctx context.Context) (*models.UserProfile, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfiles) Update(ctx context.Context, body []byte) (*models.UserProfile, error) {
	args := m.Called(ctx, body)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSamples struct {
	mock.Mock
}

func (m *mockSamples) Create(ctx context.Context, in models.NewSample) (*models.Sample, error) {
	args := m.Called(ctx, in)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSamples) Get(ctx context.Context, id string) (*models.Sample, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSamples) Metadata(ctx context.Context, id string) ([]*models.Metadata, error) {
	args := m.Called(ctx, id)
	if md := args.Get(0); md != nil {
		return md.([]*models.Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSamples) List(ctx context.Context, limit int) ([]*models.Sample, error) {
	args := m.Called(ctx, limit)
	if s := args.Get(0); s != nil {
		return s.([]*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSamples) Update(ctx context.Context, id string, patch models.SamplePatch) (*models.Sample, error) {
	args := m.Called(ctx, id, patch)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSamples) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockMaintenance struct {
	mock.Mock
}

func (m *mockMaintenance) Provision(ctx context.Context) (*schema.ProvisionReport, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*schema.ProvisionReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenance) MigrateEmbeddings(ctx context.Context, dimension int) (*schema.MigrationReport, error) {
	args := m.Called(ctx, dimension)
	if r := args.Get(0); r != nil {
		return r.(*schema.MigrationReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenance) ReembedAll(ctx context.Context) (*services.ReembedReport, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*services.ReembedReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenance) CheckSchema(ctx context.Context) (*services.SchemaStatus, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*services.SchemaStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenance) CreateTestUser(ctx context.Context) (*models.UserProfile, bool, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *mockMaintenance) TestEmbedding(ctx context.Context) (*services.EmbeddingSample, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*services.EmbeddingSample), args.Error(1)
	}
	return nil, args.Error(1)
}
