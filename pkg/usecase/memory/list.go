package memory

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
)

// DefaultListLimit bounds listing when the caller supplies no limit.
const DefaultListLimit = 20

// List retrieves records ordered by most recently updated, after sweeping
// expired records.
func (u *UseCase) List(ctx context.Context, limit int) ([]*model.Memory, error) {
	u.sweep(ctx)

	if limit <= 0 {
		limit = DefaultListLimit
	}

	return u.repo.ListMemories(ctx, limit)
}

// Cleanup runs the expiry sweep explicitly and reports the number of
// deleted records.
func (u *UseCase) Cleanup(ctx context.Context) (int64, error) {
	return u.repo.CleanupExpired(ctx)
}
