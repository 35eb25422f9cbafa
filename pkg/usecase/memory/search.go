package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/utils/logging"
)

const (
	// DefaultSearchLimit applies when the caller supplies no k.
	DefaultSearchLimit = 8

	baseFetchMultiplier   = 4
	hybridFetchMultiplier = 6
	minFetchWindow        = 50
)

// SearchInput contains the retrieval request. Query and Embedding are both
// optional; a whitespace-only query counts as absent. Embedding is
// transport-internal; when absent and a query is present, the query vector
// is derived via the embedding provider.
type SearchInput struct {
	Query     string
	Limit     int
	Embedding []float32
}

// Search produces up to k candidates from the text and/or vector retrieval
// paths. Expired records are swept first. A pure text query keeps the text
// index's own order; every other combination goes through the composite
// ranking policy.
func (u *UseCase) Search(ctx context.Context, input SearchInput) ([]*model.Memory, error) {
	u.sweep(ctx)

	k := input.Limit
	if k <= 0 {
		k = DefaultSearchLimit
	}
	if k > model.MaxSearchLimit {
		k = model.MaxSearchLimit
	}

	query := strings.TrimSpace(input.Query)
	queryVec := model.NormalizeEmbedding(input.Embedding)
	if queryVec == nil && query != "" && u.embedder != nil {
		vec, err := u.embedder.EmbedQuery(ctx, query)
		if err != nil {
			logging.From(ctx).Warn("query embedding failed, ranking by text only", "error", err)
		} else {
			queryVec = model.NormalizeEmbedding(vec)
		}
	}

	// A text query without a query vector is an index lookup, not a
	// re-ranking problem: the FTS relevance order (or the fallback's
	// recency order) is the result order, truncated to k.
	if query != "" && queryVec == nil {
		matched, err := u.repo.SearchText(ctx, query, k)
		if err != nil {
			return nil, err
		}
		u.touch(ctx, matched)
		return matched, nil
	}

	pool, err := u.gatherCandidates(ctx, query, queryVec, k)
	if err != nil {
		return nil, err
	}

	ranked := rankCandidates(pool, query != "", queryVec != nil, k, time.Now())
	u.touch(ctx, ranked)

	return ranked, nil
}

// touch records the surfacing of results. Bookkeeping must never block the
// result, so a failure here is only logged.
func (u *UseCase) touch(ctx context.Context, results []*model.Memory) {
	if len(results) == 0 {
		return
	}

	ids := make([]model.MemoryID, len(results))
	for i, m := range results {
		ids[i] = m.ID
	}
	if err := u.repo.TouchMemories(ctx, ids); err != nil {
		logging.From(ctx).Warn("failed to record memory access", "error", err)
	}
}

// gatherCandidates assembles the deduplicated candidate pool for the
// ranking policy. Three branches, mutually exclusive: vector-only, plain
// recency, and merged text+vector. A text query without a vector never
// reaches here.
func (u *UseCase) gatherCandidates(ctx context.Context, query string, queryVec []float32, k int) ([]*candidate, error) {
	if query == "" {
		if queryVec != nil {
			embedded, err := u.repo.ListEmbedded(ctx, window(k*hybridFetchMultiplier))
			if err != nil {
				return nil, err
			}
			return scoreCandidates(embedded, queryVec, false), nil
		}

		recent, err := u.repo.ListMemories(ctx, window(k*baseFetchMultiplier))
		if err != nil {
			return nil, err
		}
		return scoreCandidates(recent, nil, false), nil
	}

	matched, err := u.repo.SearchText(ctx, query, k*hybridFetchMultiplier)
	if err != nil {
		return nil, err
	}
	pool := scoreCandidates(matched, queryVec, true)

	// Merge the vector window into the text-matched set, keeping
	// text-matched membership per id for the downstream text signal.
	embedded, err := u.repo.ListEmbedded(ctx, window(k*hybridFetchMultiplier))
	if err != nil {
		return nil, err
	}

	seen := make(map[model.MemoryID]bool, len(pool))
	for _, c := range pool {
		seen[c.memory.ID] = true
	}
	for _, c := range scoreCandidates(embedded, queryVec, false) {
		if seen[c.memory.ID] {
			continue
		}
		seen[c.memory.ID] = true
		pool = append(pool, c)
	}

	return pool, nil
}

func scoreCandidates(memories []*model.Memory, queryVec []float32, textMatched bool) []*candidate {
	pool := make([]*candidate, 0, len(memories))
	for _, m := range memories {
		c := &candidate{memory: m, textMatched: textMatched}
		if queryVec != nil && len(m.Embedding) > 0 {
			if sim := model.CosineSimilarity(queryVec, m.Embedding); sim > 0 {
				c.embedScore = sim
			}
		}
		pool = append(pool, c)
	}
	return pool
}

func window(n int) int {
	if n < minFetchWindow {
		return minFetchWindow
	}
	return n
}
