package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Field limits enforced at the caller boundary before any record reaches the
// store. MaxContentLength is the upper bound of the deployment profile;
// MinContentLength is the lower bound a profile may shrink it to.
const (
	MaxSubjectLength = 160
	MaxContentLength = 2000
	MinContentLength = 1000
	MaxTagCount      = 32
	MaxEmbeddingDim  = 4096
	MaxSearchLimit   = 20
	MaxImportBatch   = 1000
)

const DefaultImportance = 0.5

var (
	ErrEmptySubject   = goerr.New("subject is empty")
	ErrSubjectTooLong = goerr.New("subject exceeds maximum length")
	ErrEmptyContent   = goerr.New("content is empty")
	ErrContentTooLong = goerr.New("content exceeds maximum length")
	ErrTooManyTags    = goerr.New("too many tags")
	ErrInvalidTTL     = goerr.New("ttl_days must be a finite number")
	ErrBatchTooLarge  = goerr.New("import batch exceeds maximum size")
)

// Memory represents a stored subject/content fact with retrieval metadata.
// Embedding is internal to the store and never serialized toward a caller.
type Memory struct {
	ID           MemoryID   `json:"id" yaml:"id"`
	Subject      string     `json:"subject" yaml:"subject"`
	Content      string     `json:"content" yaml:"content"`
	Tags         []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Importance   float64    `json:"importance" yaml:"importance"`
	Embedding    []float32  `json:"-" yaml:"-"`
	AccessCount  int64      `json:"access_count,omitempty" yaml:"access_count,omitempty"`
	LastAccessed *time.Time `json:"last_accessed,omitempty" yaml:"last_accessed,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether the record is logically dead at the given time.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ValidateSubject checks the subject length constraint.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrEmptySubject
	}
	if len(subject) > MaxSubjectLength {
		return goerr.Wrap(ErrSubjectTooLong,
			"subject too long",
			goerr.V("length", len(subject)),
			goerr.V("max", MaxSubjectLength))
	}
	return nil
}

// ValidateContent checks the content length against the deployment profile
// limit. A non-positive limit falls back to MaxContentLength.
func ValidateContent(content string, limit int) error {
	if content == "" {
		return ErrEmptyContent
	}
	if limit <= 0 {
		limit = MaxContentLength
	}
	if len(content) > limit {
		return goerr.Wrap(ErrContentTooLong,
			"content too long",
			goerr.V("length", len(content)),
			goerr.V("max", limit))
	}
	return nil
}

// ValidateTags checks the tag count constraint.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTagCount {
		return goerr.Wrap(ErrTooManyTags,
			"too many tags",
			goerr.V("count", len(tags)),
			goerr.V("max", MaxTagCount))
	}
	return nil
}

// ValidateTTL rejects non-finite TTL values. Negative TTLs are valid and
// produce an already-expired record.
func ValidateTTL(ttlDays float64) error {
	if math.IsNaN(ttlDays) || math.IsInf(ttlDays, 0) {
		return goerr.Wrap(ErrInvalidTTL, "invalid ttl", goerr.V("ttl_days", ttlDays))
	}
	return nil
}

// ExpiryFromTTL converts a relative TTL in days to an absolute expiry
// timestamp anchored at now. The offset saturates at the duration range so
// a huge finite TTL cannot overflow into a bogus expiry.
func ExpiryFromTTL(now time.Time, ttlDays float64) time.Time {
	d := ttlDays * 24 * float64(time.Hour)
	switch {
	case d >= math.MaxInt64:
		return now.Add(time.Duration(math.MaxInt64))
	case d <= math.MinInt64:
		return now.Add(time.Duration(math.MinInt64))
	}
	return now.Add(time.Duration(d))
}
