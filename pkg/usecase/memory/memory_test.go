package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/repository"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/gt"
)

// mockEmbedder derives a deterministic character histogram so related texts
// land near each other without a live provider.
type mockEmbedder struct {
	fail  bool
	calls int
}

func (m *mockEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return m.embed(text)
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return m.embed(text)
}

func (m *mockEmbedder) embed(text string) ([]float32, error) {
	m.calls++
	if m.fail {
		return nil, errors.New("embedding unavailable")
	}

	vec := make([]float32, 8)
	for _, r := range strings.ToLower(text) {
		vec[int(r)%8]++
	}
	return vec, nil
}

func setupUseCase(t *testing.T, opts ...memory.Option) *memory.UseCase {
	repo, err := repository.New(context.Background(), filepath.Join(t.TempDir(), "engram.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return memory.New(repo, opts...)
}

func ptr[T any](v T) *T {
	return &v
}

func TestInsert(t *testing.T) {
	uc := setupUseCase(t, memory.WithEmbedder(&mockEmbedder{}))
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color",
		Content: "the user prefers blue",
		Tags:    []string{"preference"},
	})
	gt.NoError(t, err)
	gt.Equal(t, inserted.CreatedAt, inserted.UpdatedAt)
	gt.Equal(t, inserted.Importance, model.DefaultImportance)
	gt.V(t, inserted.ExpiresAt).Nil()
	gt.V(t, inserted.Embedding).NotNil()

	retrieved, err := uc.Get(ctx, inserted.ID)
	gt.NoError(t, err)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved.Subject, "favorite color")
	gt.Equal(t, retrieved.Content, "the user prefers blue")
	gt.Equal(t, retrieved.Tags, []string{"preference"})
	gt.Equal(t, retrieved.Embedding, inserted.Embedding)
}

func TestInsertValidation(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	cases := map[string]memory.InsertInput{
		"empty subject":    {Subject: "", Content: "blue"},
		"subject too long": {Subject: strings.Repeat("x", model.MaxSubjectLength+1), Content: "blue"},
		"empty content":    {Subject: "s", Content: ""},
		"content too long": {Subject: "s", Content: strings.Repeat("x", model.MaxContentLength+1)},
		"too many tags":    {Subject: "s", Content: "c", Tags: make([]string, model.MaxTagCount+1)},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Insert(ctx, input)
			gt.Error(t, err)
		})
	}
}

func TestInsertContentLimitProfile(t *testing.T) {
	uc := setupUseCase(t, memory.WithContentLimit(1000))
	ctx := context.Background()

	_, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "long note",
		Content: strings.Repeat("x", 1001),
	})
	gt.Error(t, err)

	_, err = uc.Insert(ctx, memory.InsertInput{
		Subject: "fitting note",
		Content: strings.Repeat("x", 1000),
	})
	gt.NoError(t, err)
}

func TestInsertImportanceClamped(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	high, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "s", Content: "c", Importance: ptr(2.5),
	})
	gt.NoError(t, err)
	gt.Equal(t, high.Importance, 1.0)

	low, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "s", Content: "c", Importance: ptr(-1.0),
	})
	gt.NoError(t, err)
	gt.Equal(t, low.Importance, 0.0)
}

func TestInsertExplicitEmbedding(t *testing.T) {
	embedder := &mockEmbedder{}
	uc := setupUseCase(t, memory.WithEmbedder(embedder))

	inserted, err := uc.Insert(context.Background(), memory.InsertInput{
		Subject:   "s",
		Content:   "c",
		Embedding: []float32{0.1, 0.9},
	})
	gt.NoError(t, err)
	gt.Equal(t, inserted.Embedding, []float32{0.1, 0.9})
	gt.Equal(t, embedder.calls, 0)
}

func TestInsertEmbedderFailure(t *testing.T) {
	uc := setupUseCase(t, memory.WithEmbedder(&mockEmbedder{fail: true}))

	inserted, err := uc.Insert(context.Background(), memory.InsertInput{
		Subject: "s", Content: "c",
	})
	gt.NoError(t, err)
	gt.V(t, inserted.Embedding).Nil()
}

func TestLazyExpiry(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	keeper, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "blue",
	})
	gt.NoError(t, err)

	stale, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "old note", Content: "already past its time", TTLDays: ptr(-1.0),
	})
	gt.NoError(t, err)

	// A single-target lookup does not sweep: the stale record is still
	// visible until a sweeping operation runs.
	found, err := uc.Get(ctx, stale.ID)
	gt.NoError(t, err)
	gt.V(t, found).NotNil()

	memories, err := uc.List(ctx, 10)
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].ID, keeper.ID)

	found, err = uc.Get(ctx, stale.ID)
	gt.NoError(t, err)
	gt.V(t, found).Nil()
}

func TestCleanup(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "old", Content: "expired", TTLDays: ptr(-1.0),
	})
	gt.NoError(t, err)

	deleted, err := uc.Cleanup(ctx)
	gt.NoError(t, err)
	gt.Equal(t, deleted, int64(1))

	deleted, err = uc.Cleanup(ctx)
	gt.NoError(t, err)
	gt.Equal(t, deleted, int64(0))
}

func TestUpdatePartial(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject:   "favorite color",
		Content:   "blue",
		Embedding: []float32{0.5, 0.5},
	})
	gt.NoError(t, err)

	updated, err := uc.Update(ctx, inserted.ID, memory.UpdateInput{
		Subject: ptr("favorite colour"),
	})
	gt.NoError(t, err)
	gt.Equal(t, updated.Subject, "favorite colour")
	gt.Equal(t, updated.Content, "blue")
	// No embedder is configured, so the stored vector must be untouched.
	gt.Equal(t, updated.Embedding, []float32{0.5, 0.5})
}

func TestUpdateReDerivesEmbedding(t *testing.T) {
	embedder := &mockEmbedder{}
	uc := setupUseCase(t, memory.WithEmbedder(embedder))
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "blue",
	})
	gt.NoError(t, err)

	updated, err := uc.Update(ctx, inserted.ID, memory.UpdateInput{
		Content: ptr("crimson, as of this week"),
	})
	gt.NoError(t, err)
	gt.V(t, updated.Embedding).NotNil()
	if len(updated.Embedding) == len(inserted.Embedding) {
		same := true
		for i := range updated.Embedding {
			if updated.Embedding[i] != inserted.Embedding[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("embedding should be re-derived when content changes")
		}
	}
}

func TestUpdateEmbedderFailureKeepsVector(t *testing.T) {
	embedder := &mockEmbedder{}
	uc := setupUseCase(t, memory.WithEmbedder(embedder))
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "blue",
	})
	gt.NoError(t, err)

	embedder.fail = true
	updated, err := uc.Update(ctx, inserted.ID, memory.UpdateInput{
		Content: ptr("crimson"),
	})
	gt.NoError(t, err)
	gt.Equal(t, updated.Embedding, inserted.Embedding)
}

func TestUpdateMissing(t *testing.T) {
	uc := setupUseCase(t)

	updated, err := uc.Update(context.Background(), model.NewMemoryID(), memory.UpdateInput{
		Subject: ptr("anything"),
	})
	gt.NoError(t, err)
	gt.V(t, updated).Nil()
}

func TestUpdateEmptyPatch(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "s", Content: "c",
	})
	gt.NoError(t, err)

	updated, err := uc.Update(ctx, inserted.ID, memory.UpdateInput{})
	gt.NoError(t, err)
	gt.Equal(t, updated.UpdatedAt.UnixMilli(), inserted.UpdatedAt.UnixMilli())
}

func TestDelete(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "s", Content: "c",
	})
	gt.NoError(t, err)

	gt.NoError(t, uc.Delete(ctx, inserted.ID))
	gt.NoError(t, uc.Delete(ctx, inserted.ID))

	found, err := uc.Get(ctx, inserted.ID)
	gt.NoError(t, err)
	gt.V(t, found).Nil()
}

func TestSearchNoQueryReturnsRecent(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	first, err := uc.Insert(ctx, memory.InsertInput{Subject: "first", Content: "older note"})
	gt.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	second, err := uc.Insert(ctx, memory.InsertInput{Subject: "second", Content: "newer note"})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].ID, second.ID)
	gt.Equal(t, results[1].ID, first.ID)
}

func TestSearchTextRanksMatchFirst(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	blue, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "the user prefers blue",
	})
	gt.NoError(t, err)

	_, err = uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite food", Content: "the user loves pizza",
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{Query: "blue", Limit: 5})
	gt.NoError(t, err)
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	gt.Equal(t, results[0].ID, blue.ID)
}

func TestSearchTextOnlyKeepsIndexOrder(t *testing.T) {
	repo, err := repository.New(context.Background(), filepath.Join(t.TempDir(), "engram.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	uc := memory.New(repo)
	ctx := context.Background()

	// High text relevance, but low importance and the older record: the
	// composite policy would bury it behind the fresher important one.
	relevant, err := uc.Insert(ctx, memory.InsertInput{
		Subject:    "sky note",
		Content:    "blue blue blue",
		Importance: ptr(0.1),
	})
	gt.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = uc.Insert(ctx, memory.InsertInput{
		Subject:    "long note",
		Content:    "many words here with a single mention of blue at the end",
		Importance: ptr(1.0),
	})
	gt.NoError(t, err)

	indexed, err := repo.SearchText(ctx, "blue", 10)
	gt.NoError(t, err)
	gt.A(t, indexed).Length(2)
	gt.Equal(t, indexed[0].ID, relevant.ID)

	// Without a query vector the index order is the result order.
	results, err := uc.Search(ctx, memory.SearchInput{Query: "blue", Limit: 10})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].ID, indexed[0].ID)
	gt.Equal(t, results[1].ID, indexed[1].ID)
}

func TestSearchVectorOnly(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	near, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "near", Content: "close to the query", Embedding: []float32{1, 0},
	})
	gt.NoError(t, err)

	far, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "far", Content: "orthogonal to the query", Embedding: []float32{0, 1},
	})
	gt.NoError(t, err)

	_, err = uc.Insert(ctx, memory.InsertInput{
		Subject: "plain", Content: "no vector at all",
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{Embedding: []float32{1, 0}, Limit: 10})
	gt.NoError(t, err)
	// Only embedded records participate in the vector-only path.
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].ID, near.ID)
	gt.Equal(t, results[1].ID, far.ID)
}

func TestSearchHybridMergesPools(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	textual, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "the user prefers blue",
	})
	gt.NoError(t, err)

	vectored, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "palette note", Content: "warm tones in the evening", Embedding: []float32{1, 0},
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{
		Query:     "blue",
		Embedding: []float32{1, 0},
		Limit:     10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)

	ids := map[model.MemoryID]bool{}
	for _, r := range results {
		ids[r.ID] = true
	}
	gt.Equal(t, ids[textual.ID], true)
	gt.Equal(t, ids[vectored.ID], true)
}

func TestSearchLimitCapped(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	for i := 0; i < model.MaxSearchLimit+5; i++ {
		_, err := uc.Insert(ctx, memory.InsertInput{
			Subject: "note", Content: "filler content",
		})
		gt.NoError(t, err)
	}

	results, err := uc.Search(ctx, memory.SearchInput{Limit: 100})
	gt.NoError(t, err)
	gt.A(t, results).Length(model.MaxSearchLimit)
}

func TestSearchQueryEmbeddingFailureDegrades(t *testing.T) {
	embedder := &mockEmbedder{}
	uc := setupUseCase(t, memory.WithEmbedder(embedder))
	ctx := context.Background()

	blue, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "the user prefers blue",
	})
	gt.NoError(t, err)

	embedder.fail = true
	results, err := uc.Search(ctx, memory.SearchInput{Query: "blue"})
	gt.NoError(t, err)
	if len(results) == 0 {
		t.Fatal("expected text results despite embedding failure")
	}
	gt.Equal(t, results[0].ID, blue.ID)
}

func TestSearchTouchesResults(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	inserted, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "blue",
	})
	gt.NoError(t, err)

	_, err = uc.Search(ctx, memory.SearchInput{Query: "blue"})
	gt.NoError(t, err)

	touched, err := uc.Get(ctx, inserted.ID)
	gt.NoError(t, err)
	gt.Equal(t, touched.AccessCount, int64(1))
	gt.V(t, touched.LastAccessed).NotNil()
}

func TestSearchSweepsExpired(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "stale", Content: "the user prefers blue", TTLDays: ptr(-1.0),
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{Query: "blue"})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestImportExportRoundTrip(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	imported, err := uc.Import(ctx, []memory.ImportItem{
		{Subject: "first", Content: "first note", Tags: []string{"a"}},
		{Subject: "second", Content: "second note", Importance: ptr(0.9)},
	})
	gt.NoError(t, err)
	gt.Equal(t, imported, 2)

	exported, err := uc.Export(ctx)
	gt.NoError(t, err)
	gt.A(t, exported).Length(2)
	gt.Equal(t, exported[0].Subject, "first")
	gt.Equal(t, exported[1].Subject, "second")
	gt.Equal(t, exported[1].Importance, 0.9)
}

func TestImportBatchTooLarge(t *testing.T) {
	uc := setupUseCase(t)

	items := make([]memory.ImportItem, model.MaxImportBatch+1)
	for i := range items {
		items[i] = memory.ImportItem{Subject: "s", Content: "c"}
	}

	_, err := uc.Import(context.Background(), items)
	gt.Error(t, err)
	gt.Equal(t, errors.Is(err, model.ErrBatchTooLarge), true)
}

func TestImportInvalidItemRejectsBatch(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Import(ctx, []memory.ImportItem{
		{Subject: "valid", Content: "fine"},
		{Subject: "", Content: "missing subject"},
	})
	gt.Error(t, err)

	memories, err := uc.List(ctx, 10)
	gt.NoError(t, err)
	gt.A(t, memories).Length(0)
}

func TestImportExpiryPrecedence(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	explicit := time.Now().Add(48 * time.Hour).Truncate(time.Millisecond)
	imported, err := uc.Import(ctx, []memory.ImportItem{
		{Subject: "pinned", Content: "explicit expiry wins", TTLDays: ptr(7.0), ExpiresAt: &explicit},
	})
	gt.NoError(t, err)
	gt.Equal(t, imported, 1)

	exported, err := uc.Export(ctx)
	gt.NoError(t, err)
	gt.A(t, exported).Length(1)
	gt.Equal(t, exported[0].ExpiresAt.UnixMilli(), explicit.UnixMilli())
}

func TestRecallScenario(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	color, err := uc.Insert(ctx, memory.InsertInput{
		Subject: "favorite color", Content: "the user prefers blue",
	})
	gt.NoError(t, err)

	_, err = uc.Insert(ctx, memory.InsertInput{
		Subject: "scratch note", Content: "temporary reminder", TTLDays: ptr(-1.0),
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, memory.SearchInput{Query: "favorite color"})
	gt.NoError(t, err)
	if len(results) == 0 {
		t.Fatal("expected a recall hit")
	}
	gt.Equal(t, results[0].ID, color.ID)
	gt.Equal(t, results[0].Content, "the user prefers blue")

	memories, err := uc.List(ctx, 10)
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].ID, color.ID)
}
