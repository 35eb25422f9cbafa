package memory

import (
	"testing"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/gt"
)

func rankMemory(id string, importance float64, updated time.Time) *model.Memory {
	return &model.Memory{
		ID:         model.MemoryID(id),
		Importance: importance,
		CreatedAt:  updated,
		UpdatedAt:  updated,
	}
}

func TestRankRecencyBreaksEvenSignals(t *testing.T) {
	now := time.Now()
	fresh := rankMemory("fresh", 0.5, now)
	old := rankMemory("old", 0.5, now.AddDate(0, 0, -60))

	pool := []*candidate{
		{memory: old},
		{memory: fresh},
	}

	ranked := rankCandidates(pool, false, false, 2, now)
	gt.A(t, ranked).Length(2)
	gt.Equal(t, ranked[0].ID, fresh.ID)
	gt.Equal(t, ranked[1].ID, old.ID)
}

func TestRankTextMatchDominates(t *testing.T) {
	now := time.Now()
	matched := rankMemory("matched", 0.5, now.AddDate(0, 0, -10))
	unmatched := rankMemory("unmatched", 0.5, now)

	pool := []*candidate{
		{memory: unmatched},
		{memory: matched, textMatched: true},
	}

	ranked := rankCandidates(pool, true, false, 2, now)
	gt.Equal(t, ranked[0].ID, matched.ID)
}

func TestRankVectorSimilarityDominates(t *testing.T) {
	now := time.Now()
	near := rankMemory("near", 0.5, now.AddDate(0, 0, -10))
	far := rankMemory("far", 0.5, now)

	pool := []*candidate{
		{memory: far, embedScore: 0.1},
		{memory: near, embedScore: 0.95},
	}

	ranked := rankCandidates(pool, false, true, 2, now)
	gt.Equal(t, ranked[0].ID, near.ID)
}

func TestRankImportanceBreaksTies(t *testing.T) {
	now := time.Now()
	critical := rankMemory("critical", 1.0, now)
	trivial := rankMemory("trivial", 0.1, now)

	pool := []*candidate{
		{memory: trivial},
		{memory: critical},
	}

	ranked := rankCandidates(pool, false, false, 2, now)
	gt.Equal(t, ranked[0].ID, critical.ID)
}

func TestRankTiesKeepFetchOrder(t *testing.T) {
	now := time.Now()
	pool := []*candidate{
		{memory: rankMemory("a", 0.5, now)},
		{memory: rankMemory("b", 0.5, now)},
		{memory: rankMemory("c", 0.5, now)},
	}

	ranked := rankCandidates(pool, false, false, 3, now)
	gt.Equal(t, ranked[0].ID, model.MemoryID("a"))
	gt.Equal(t, ranked[1].ID, model.MemoryID("b"))
	gt.Equal(t, ranked[2].ID, model.MemoryID("c"))
}

func TestRankTruncatesToK(t *testing.T) {
	now := time.Now()
	pool := []*candidate{
		{memory: rankMemory("a", 0.5, now)},
		{memory: rankMemory("b", 0.5, now)},
		{memory: rankMemory("c", 0.5, now)},
	}

	gt.A(t, rankCandidates(pool, false, false, 2, now)).Length(2)
	gt.A(t, rankCandidates(pool, false, false, 10, now)).Length(3)
	gt.A(t, rankCandidates(nil, false, false, 5, now)).Length(0)
}

func TestRecencyScore(t *testing.T) {
	now := time.Now()

	gt.Equal(t, recencyScore(&model.Memory{}, now), defaultRecency)

	fresh := recencyScore(rankMemory("fresh", 0.5, now), now)
	if fresh < 0.99 || fresh > 1.0 {
		t.Errorf("fresh record should score near 1.0, got %f", fresh)
	}

	// At the half-life the score is exactly halved.
	halved := recencyScore(rankMemory("mid", 0.5, now.AddDate(0, 0, -30)), now)
	if halved < 0.49 || halved > 0.51 {
		t.Errorf("30-day-old record should score near 0.5, got %f", halved)
	}

	// A surfacing after the last mutation moves the touch point forward.
	accessed := now.Add(-time.Hour)
	m := rankMemory("touched", 0.5, now.AddDate(0, 0, -60))
	m.LastAccessed = &accessed
	recent := recencyScore(m, now)
	stale := recencyScore(rankMemory("untouched", 0.5, now.AddDate(0, 0, -60)), now)
	if recent <= stale {
		t.Errorf("surfaced record should outrank its mutation age: %f <= %f", recent, stale)
	}

	// Clock skew must not push the score above 1.
	future := recencyScore(rankMemory("future", 0.5, now.Add(time.Hour)), now)
	if future > 1.0 {
		t.Errorf("future timestamp should clamp, got %f", future)
	}
}
