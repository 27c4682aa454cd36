// Package models defines the persisted entities of the style guide service.
package models

import (
	"time"

	"github.com/lib/pq"
)

// UserProfile is the single-tenant owner of all samples
type UserProfile struct {
	ID            string         `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	PersonaTags   pq.StringArray `json:"persona_tags" db:"persona_tags"`
	DefaultTone   string         `json:"default_tone" db:"default_tone"`
	DefaultLength int            `json:"default_length" db:"default_length"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// ProfileDefaults are the values a lazily created profile starts with
type ProfileDefaults struct {
	Name          string
	DefaultTone   string
	DefaultLength int
	PersonaTags   []string
}

// ProfilePatch is a merge-patch; nil fields keep their stored value
type ProfilePatch struct {
	PersonaTags   *[]string `json:"persona_tags,omitempty"`
	DefaultTone   *string   `json:"default_tone,omitempty"`
	DefaultLength *int      `json:"default_length,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ProfilePatch) IsEmpty() bool {
	return p.PersonaTags == nil && p.DefaultTone == nil && p.DefaultLength == nil
}

// Apply merges the patch into the profile
func (p ProfilePatch) Apply(profile *UserProfile) {
	if p.PersonaTags != nil {
		profile.PersonaTags = pq.StringArray(nonNil(*p.PersonaTags))
	}
	if p.DefaultTone != nil {
		profile.DefaultTone = *p.DefaultTone
	}
	if p.DefaultLength != nil {
		profile.DefaultLength = *p.DefaultLength
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
