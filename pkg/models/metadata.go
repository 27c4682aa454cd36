package models

import "time"

// Metadata carries optional descriptors of a sample
type Metadata struct {
	ID              string    `json:"id" db:"id"`
	SampleID        string    `json:"sample_id" db:"sample_id"`
	Source          *string   `json:"source,omitempty" db:"source"`
	License         *string   `json:"license,omitempty" db:"license"`
	Language        *string   `json:"language,omitempty" db:"language"`
	Mood            *string   `json:"mood,omitempty" db:"mood"`
	DurationSeconds *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	FileSizeBytes   *int64    `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// NewMetadata is the metadata supplied alongside a new sample
type NewMetadata struct {
	Source          *string `json:"source,omitempty"`
	License         *string `json:"license,omitempty"`
	Language        *string `json:"language,omitempty"`
	Mood            *string `json:"mood,omitempty"`
	DurationSeconds *int    `json:"duration_seconds,omitempty"`
	FileSizeBytes   *int64  `json:"file_size_bytes,omitempty"`
}
