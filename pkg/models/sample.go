package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// SampleType is the media kind of a sample
type SampleType string

// Sample types
const (
	SampleTypeText  SampleType = "text"
	SampleTypeAudio SampleType = "audio"
	SampleTypeVideo SampleType = "video"
	SampleTypeImage SampleType = "image"
)

// SampleTypes lists every accepted sample type
var SampleTypes = []SampleType{SampleTypeText, SampleTypeAudio, SampleTypeVideo, SampleTypeImage}

// Valid reports whether t is one of the four accepted kinds
func (t SampleType) Valid() bool {
	switch t {
	case SampleTypeText, SampleTypeAudio, SampleTypeVideo, SampleTypeImage:
		return true
	}
	return false
}

// ParseSampleType validates a raw type string
func ParseSampleType(raw string) (SampleType, error) {
	t := SampleType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("invalid sample type %q: must be one of text, audio, video, image", raw)
	}
	return t, nil
}

// Sample is one style sample owned by a profile. For text samples URL holds
// the inline content; for media it is the content locator.
type Sample struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      SampleType       `json:"type" db:"type"`
	URL       string           `json:"url" db:"url"`
	Context   *string          `json:"context" db:"context"`
	Tags      pq.StringArray   `json:"tags" db:"tags"`
	Modes     pq.StringArray   `json:"modes" db:"modes"`
	Embedding *pgvector.Vector `json:"-" db:"embedding_vector"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// EmbeddingLength returns the stored vector length, zero when absent
func (s *Sample) EmbeddingLength() int {
	if s.Embedding == nil {
		return 0
	}
	return len(s.Embedding.Slice())
}

// SetEmbedding stores vec, or clears the embedding when vec is empty
func (s *Sample) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		s.Embedding = nil
		return
	}
	v := pgvector.NewVector(vec)
	s.Embedding = &v
}

// OptionalString tells an absent JSON field apart from an explicit null.
// Set is true whenever the field was present in the body.
type OptionalString struct {
	Set   bool
	Value *string
}

// SomeString returns a present, non-null value
func SomeString(v string) OptionalString {
	return OptionalString{Set: true, Value: &v}
}

// NullString returns a present null
func NullString() OptionalString {
	return OptionalString{Set: true}
}

// UnmarshalJSON only runs for fields present in the body, null included
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON writes the value or null
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// SamplePatch is a merge-patch. Absent fields keep their stored value; an
// explicit null context clears it.
type SamplePatch struct {
	Tags    *[]string      `json:"tags,omitempty"`
	Modes   *[]string      `json:"modes,omitempty"`
	Context OptionalString `json:"context"`
}

// IsEmpty reports whether the patch changes nothing
func (p SamplePatch) IsEmpty() bool {
	return p.Tags == nil && p.Modes == nil && !p.Context.Set
}

// Apply merges the patch into the sample
func (p SamplePatch) Apply(s *Sample) {
	if p.Tags != nil {
		s.Tags = pq.StringArray(nonNil(*p.Tags))
	}
	if p.Modes != nil {
		s.Modes = pq.StringArray(nonNil(*p.Modes))
	}
	if p.Context.Set {
		if p.Context.Value == nil {
			s.Context = nil
		} else {
			ctx := *p.Context.Value
			s.Context = &ctx
		}
	}
}

// NewSample is the input of a sample creation
type NewSample struct {
	Type     SampleType
	Content  string
	Context  *string
	Tags     []string
	Modes    []string
	Metadata *NewMetadata
}
