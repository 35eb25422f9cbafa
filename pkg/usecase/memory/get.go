package memory

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
)

// Get retrieves a single record by ID. Returns (nil, nil) when the record
// does not exist. A single-target lookup does not trigger the expiry sweep,
// so a stale record stays visible here until a sweep runs.
func (u *UseCase) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	return u.repo.GetMemory(ctx, id)
}

// Delete removes a record. Deleting a missing ID is not an error.
func (u *UseCase) Delete(ctx context.Context, id model.MemoryID) error {
	return u.repo.DeleteMemory(ctx, id)
}
