package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/developer-mesh/style-guide-service/pkg/database"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

const profileColumns = `id, name, persona_tags, default_tone, default_length, created_at, updated_at`

// ProfileRepository stores user profiles
type ProfileRepository interface {
	// GetOrCreate returns the profile, inserting it with defaults when absent.
	// Concurrent callers never create duplicates.
	GetOrCreate(ctx context.Context, id string, defaults models.ProfileDefaults) (*models.UserProfile, error)
	// Update merges patch into the profile, creating it first when absent
	Update(ctx context.Context, id string, defaults models.ProfileDefaults, patch models.ProfilePatch) (*models.UserProfile, error)
	// Insert adds the profile unless one with its id exists. created reports
	// which happened; the stored row is returned either way.
	Insert(ctx context.Context, profile *models.UserProfile) (stored *models.UserProfile, created bool, err error)
}

type profileRepository struct {
	base
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *database.Database, logger observability.Logger, metrics observability.MetricsClient) ProfileRepository {
	return &profileRepository{base: newBase(db, logger, metrics)}
}

func (r *profileRepository) GetOrCreate(ctx context.Context, id string, defaults models.ProfileDefaults) (_ *models.UserProfile, err error) {
	ctx, done := r.track(ctx, "get_or_create", "user_profile")
	defer func() { done(err) }()

	return getOrCreateProfile(ctx, r.db.DB(), id, defaults)
}

func (r *profileRepository) Update(ctx context.Context, id string, defaults models.ProfileDefaults, patch models.ProfilePatch) (_ *models.UserProfile, err error) {
	ctx, done := r.track(ctx, "update", "user_profile")
	defer func() { done(err) }()

	var updated *models.UserProfile
	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := getOrCreateProfile(ctx, tx, id, defaults); err != nil {
			return err
		}

		var profile models.UserProfile
		query := `SELECT ` + profileColumns + ` FROM user_profile WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &profile, query, id); err != nil {
			return errors.Wrap(err, "failed to lock profile")
		}

		patch.Apply(&profile)
		profile.PersonaTags = nonNilArray(profile.PersonaTags)

		update := `
			UPDATE user_profile
			SET persona_tags = $1, default_tone = $2, default_length = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING updated_at
		`
		if err := tx.QueryRowxContext(ctx, update,
			profile.PersonaTags, profile.DefaultTone, profile.DefaultLength, id,
		).Scan(&profile.UpdatedAt); err != nil {
			return errors.Wrap(err, "failed to update profile")
		}
		updated = &profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *profileRepository) Insert(ctx context.Context, profile *models.UserProfile) (_ *models.UserProfile, _ bool, err error) {
	ctx, done := r.track(ctx, "insert", "user_profile")
	defer func() { done(err) }()

	stored, created, err := insertProfile(ctx, r.db.DB(), profile)
	if err != nil {
		return nil, false, err
	}
	if created {
		return stored, true, nil
	}

	existing, err := selectProfile(ctx, r.db.DB(), profile.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func getOrCreateProfile(ctx context.Context, q sqlx.QueryerContext, id string, defaults models.ProfileDefaults) (*models.UserProfile, error) {
	stored, created, err := insertProfile(ctx, q, &models.UserProfile{
		ID:            id,
		Name:          defaults.Name,
		PersonaTags:   pq.StringArray(defaults.PersonaTags),
		DefaultTone:   defaults.DefaultTone,
		DefaultLength: defaults.DefaultLength,
	})
	if err != nil {
		return nil, err
	}
	if created {
		return stored, nil
	}
	// Someone else inserted it first, possibly concurrently
	return selectProfile(ctx, q, id)
}

func insertProfile(ctx context.Context, q sqlx.QueryerContext, profile *models.UserProfile) (*models.UserProfile, bool, error) {
	query := `
		INSERT INTO user_profile (id, name, persona_tags, default_tone, default_length)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + profileColumns

	var stored models.UserProfile
	err := sqlx.GetContext(ctx, q, &stored, query,
		profile.ID, profile.Name, nonNilArray(profile.PersonaTags), profile.DefaultTone, profile.DefaultLength,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if isUniqueViolation(err) {
		return nil, false, errors.Wrapf(ErrDuplicate, "profile name %q is used by another profile", profile.Name)
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to create profile")
	}
	return &stored, true, nil
}

func selectProfile(ctx context.Context, q sqlx.QueryerContext, id string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := sqlx.GetContext(ctx, q, &profile, `SELECT `+profileColumns+` FROM user_profile WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get profile")
	}
	return &profile, nil
}
