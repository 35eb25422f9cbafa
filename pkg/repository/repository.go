package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
)

// Patch describes a partial update of a memory record. Only non-nil fields
// are applied. When both ExpiresAt and TTLDays are supplied, the explicit
// ExpiresAt wins. A non-nil Embedding replaces the stored vector.
type Patch struct {
	Subject    *string
	Content    *string
	Tags       *[]string
	Importance *float64
	TTLDays    *float64
	ExpiresAt  *time.Time
	Embedding  []float32
}

// Empty reports whether the patch carries no changes at all.
func (p *Patch) Empty() bool {
	return p.Subject == nil && p.Content == nil && p.Tags == nil &&
		p.Importance == nil && p.TTLDays == nil && p.ExpiresAt == nil &&
		p.Embedding == nil
}

// Repository defines the interface for memory record persistence
type Repository interface {
	// PutMemory persists a fully assembled memory record
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID. Returns (nil, nil) when no such
	// record exists; expiry is not swept here.
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// UpdateMemory applies a partial patch and refreshes updated_at.
	// Updating a missing ID or applying an empty patch is a no-op.
	UpdateMemory(ctx context.Context, id model.MemoryID, patch *Patch) error

	// DeleteMemory removes a memory. Deleting a missing ID is not an error.
	DeleteMemory(ctx context.Context, id model.MemoryID) error

	// ListMemories retrieves records ordered by updated_at descending
	ListMemories(ctx context.Context, limit int) ([]*model.Memory, error)

	// ListEmbedded retrieves records carrying a stored vector, ordered by
	// updated_at descending
	ListEmbedded(ctx context.Context, limit int) ([]*model.Memory, error)

	// SearchText performs an index-backed text lookup over subject and
	// content, falling back to substring matching when the full-text index
	// is unavailable or rejects the query
	SearchText(ctx context.Context, query string, limit int) ([]*model.Memory, error)

	// ExportMemories retrieves every record ordered by created_at ascending
	ExportMemories(ctx context.Context) ([]*model.Memory, error)

	// ImportMemories inserts a batch of records in one transaction; any
	// failure rolls back the whole batch
	ImportMemories(ctx context.Context, memories []*model.Memory) error

	// CleanupExpired deletes every record whose expiry is in the past and
	// returns the number of deleted rows
	CleanupExpired(ctx context.Context) (int64, error)

	// TouchMemories advances last_accessed and access_count for the given
	// IDs as a retrieval side effect
	TouchMemories(ctx context.Context, ids []model.MemoryID) error

	// FullTextEnabled reports whether the full-text index is available or
	// the store runs in degraded substring mode
	FullTextEnabled() bool

	// Close releases the underlying database handle
	Close() error
}
