package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
)

// profilePatchSchema accepts a partial profile. Null means "leave as is".
const profilePatchSchema = `{
	"type": "object",
	"properties": {
		"persona_tags": {
			"type": ["array", "null"],
			"items": {"type": "string"}
		},
		"default_tone": {"type": ["string", "null"]},
		"default_length": {"type": ["integer", "null"], "minimum": 1}
	}
}`

// ProfileService reads and patches the single service profile
type ProfileService struct {
	repo      repository.ProfileRepository
	profileID string
	defaults  models.ProfileDefaults
	schema    *gojsonschema.Schema
	logger    observability.Logger
}

// NewProfileService creates a profile service for the configured profile
func NewProfileService(repo repository.ProfileRepository, cfg config.ProfileConfig, sc ServiceConfig) (*ProfileService, error) {
	if _, err := uuid.Parse(cfg.ID); err != nil {
		return nil, fmt.Errorf("profile id %q is not a uuid: %w", cfg.ID, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(profilePatchSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile profile schema: %w", err)
	}

	sc = sc.withDefaults()
	return &ProfileService{
		repo:      repo,
		profileID: cfg.ID,
		defaults: models.ProfileDefaults{
			Name:          cfg.Name,
			DefaultTone:   cfg.DefaultTone,
			DefaultLength: cfg.DefaultLength,
			PersonaTags:   []string{},
		},
		schema: schema,
		logger: sc.Logger.WithPrefix("profile"),
	}, nil
}

// ProfileID returns the id of the service profile
func (s *ProfileService) ProfileID() string {
	return s.profileID
}

// Get returns the profile, creating it with defaults on first use
func (s *ProfileService) Get(ctx context.Context) (*models.UserProfile, error) {
	profile, err := s.repo.GetOrCreate(ctx, s.profileID, s.defaults)
	if err != nil {
		return nil, classify("profile.Get", "profile", err)
	}
	return profile, nil
}

// Update validates a JSON merge-patch body and applies it
func (s *ProfileService) Update(ctx context.Context, body []byte) (*models.UserProfile, error) {
	const op = "profile.Update"

	patch, err := s.ParsePatch(body)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.Update(ctx, s.profileID, s.defaults, patch)
	if err != nil {
		return nil, classify(op, "profile", err)
	}
	s.logger.Info("Profile updated", map[string]any{"profile_id": s.profileID})
	return profile, nil
}

// ParsePatch validates body against the profile patch schema and decodes it
func (s *ProfileService) ParsePatch(body []byte) (models.ProfilePatch, error) {
	const op = "profile.Update"
	var patch models.ProfilePatch

	if len(bytes.TrimSpace(body)) == 0 {
		return patch, apperrors.NewValidationError(op, "request body is required")
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return patch, apperrors.NewValidationError(op, "request body is not valid JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return patch, apperrors.NewValidationError(op, strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(body, &patch); err != nil {
		return patch, apperrors.NewValidationError(op, err.Error())
	}
	return patch, nil
}
