package memory

import (
	"context"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/repository"
	"github.com/m-mizutani/engram/pkg/utils/logging"
)

// UseCase is the caller boundary of the memory store: it validates input,
// caps limits, drives the lazy expiry sweep, and orchestrates the embedding
// provider around the record store.
type UseCase struct {
	repo         repository.Repository
	embedder     adapter.Embedder
	contentLimit int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithEmbedder attaches an optional embedding provider. Without one the
// store degrades to pure text/recency ranking.
func WithEmbedder(e adapter.Embedder) Option {
	return func(uc *UseCase) {
		uc.embedder = e
	}
}

// WithContentLimit sets the deployment-profile content length limit,
// clamped to the supported range.
func WithContentLimit(limit int) Option {
	return func(uc *UseCase) {
		if limit < model.MinContentLength {
			limit = model.MinContentLength
		}
		if limit > model.MaxContentLength {
			limit = model.MaxContentLength
		}
		uc.contentLimit = limit
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:         repo,
		contentLimit: model.MaxContentLength,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// FullTextEnabled exposes the store's text-index capability flag.
func (u *UseCase) FullTextEnabled() bool {
	return u.repo.FullTextEnabled()
}

// sweep runs the lazy expiry sweep ahead of a read-path operation. A sweep
// failure must not block the read, so it is only logged.
func (u *UseCase) sweep(ctx context.Context) {
	deleted, err := u.repo.CleanupExpired(ctx)
	if err != nil {
		logging.From(ctx).Warn("expiry sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		logging.From(ctx).Debug("swept expired memories", "count", deleted)
	}
}

// embedDocument derives a storage-side embedding from subject and content.
// Provider failures are logged and yield no vector.
func (u *UseCase) embedDocument(ctx context.Context, subject, content string) []float32 {
	if u.embedder == nil {
		return nil
	}

	vec, err := u.embedder.EmbedDocument(ctx, subject+"\n"+content)
	if err != nil {
		logging.From(ctx).Warn("document embedding failed, storing without vector", "error", err)
		return nil
	}

	return model.NormalizeEmbedding(vec)
}
