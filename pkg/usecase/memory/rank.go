package memory

import (
	"sort"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
)

// Ranking weights. Text and vector weights only apply when the
// corresponding signal is present in the request, and shift mass between
// each other when both are; recency and importance always apply. The final
// score is normalized by the sum of the weights in play.
const (
	textOnlyWeight     = 0.55
	vectorOnlyWeight   = 0.6
	hybridTextWeight   = 0.4
	hybridVectorWeight = 0.35
	recencyWeight      = 0.15
	importanceWeight   = 0.10

	halfLifeDays   = 30.0
	defaultRecency = 0.6

	matchedTextScore   = 1.0
	unmatchedTextScore = 0.3
	noQueryTextScore   = 0.5
)

// candidate is one pool entry awaiting ranking. embedScore is the
// similarity against the query vector, already clamped to >= 0.
type candidate struct {
	memory      *model.Memory
	textMatched bool
	embedScore  float64
}

// rankCandidates scores the pool and returns the top k records. Ties keep
// the incoming fetch order (stable within one call, otherwise undefined).
func rankCandidates(pool []*candidate, hasQuery, hasVector bool, k int, now time.Time) []*model.Memory {
	var textWeight, vectorWeight float64
	switch {
	case hasQuery && hasVector:
		textWeight, vectorWeight = hybridTextWeight, hybridVectorWeight
	case hasQuery:
		textWeight = textOnlyWeight
	case hasVector:
		vectorWeight = vectorOnlyWeight
	}
	totalWeight := textWeight + vectorWeight + recencyWeight + importanceWeight

	scores := make([]float64, len(pool))
	for i, c := range pool {
		textScore := noQueryTextScore
		if hasQuery {
			if c.textMatched {
				textScore = matchedTextScore
			} else {
				textScore = unmatchedTextScore
			}
		}

		scores[i] = (textWeight*textScore +
			vectorWeight*c.embedScore +
			recencyWeight*recencyScore(c.memory, now) +
			importanceWeight*c.memory.Importance) / totalWeight
	}

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if k > len(order) {
		k = len(order)
	}
	ranked := make([]*model.Memory, k)
	for i := 0; i < k; i++ {
		ranked[i] = pool[order[i]].memory
	}

	return ranked
}

// recencyScore decays with the time since the record was last touched:
// 1 / (1 + days / halfLife). Last touch is the most recent surfacing, or
// the last mutation when the record was never surfaced.
func recencyScore(m *model.Memory, now time.Time) float64 {
	touched := m.UpdatedAt
	if m.LastAccessed != nil && m.LastAccessed.After(touched) {
		touched = *m.LastAccessed
	}
	if touched.IsZero() {
		return defaultRecency
	}

	days := now.Sub(touched).Hours() / 24
	if days < 0 {
		days = 0
	}

	return 1 / (1 + days/halfLifeDays)
}
