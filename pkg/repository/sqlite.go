package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"

	_ "modernc.org/sqlite"
)

// migrations is applied in order, keyed on PRAGMA user_version. Each entry
// runs at most once, inside its own transaction.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL CHECK (length(subject) <= 160),
    content TEXT NOT NULL,
    tags TEXT,
    importance REAL NOT NULL DEFAULT 0.5,
    embedding TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    expires_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at) WHERE expires_at IS NOT NULL;
`,
	`
ALTER TABLE memories ADD COLUMN access_count INTEGER NOT NULL DEFAULT 0;
ALTER TABLE memories ADD COLUMN last_accessed INTEGER;
`,
}

// ftsSchema is the derived full-text index over subject and content, kept in
// lockstep with the memories table via triggers. FTS5 may be missing from
// the SQLite build; creation failure toggles substring fallback instead of
// aborting startup.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    subject, content,
    content='memories', content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, subject, content) VALUES (new.rowid, new.subject, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, subject, content) VALUES ('delete', old.rowid, old.subject, old.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, subject, content) VALUES ('delete', old.rowid, old.subject, old.content);
    INSERT INTO memories_fts(rowid, subject, content) VALUES (new.rowid, new.subject, new.content);
END;
`

const memoryColumns = `id, subject, content, tags, importance, embedding, access_count, last_accessed, created_at, updated_at, expires_at`

// SQLite implements Repository on an embedded SQLite database
type SQLite struct {
	db       *sql.DB
	fullText bool
}

// New opens (or creates) the database at path and ensures the schema. Base
// schema failure is fatal; full-text index failure only degrades search.
func New(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to enable WAL mode")
	}

	r := &SQLite{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, ftsSchema); err != nil {
		logging.From(ctx).Warn("full-text index unavailable, falling back to substring search",
			"error", err)
	} else {
		r.fullText = true
	}

	return r, nil
}

func (r *SQLite) migrate(ctx context.Context) error {
	var version int
	if err := r.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return goerr.Wrap(err, "failed to read schema version")
	}

	for i := version; i < len(migrations); i++ {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return goerr.Wrap(err, "failed to begin migration", goerr.V("version", i+1))
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return goerr.Wrap(err, "failed to apply migration", goerr.V("version", i+1))
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return goerr.Wrap(err, "failed to bump schema version", goerr.V("version", i+1))
		}
		if err := tx.Commit(); err != nil {
			return goerr.Wrap(err, "failed to commit migration", goerr.V("version", i+1))
		}
	}

	return nil
}

// FullTextEnabled reports whether FTS5 search is available.
func (r *SQLite) FullTextEnabled() bool {
	return r.fullText
}

func (r *SQLite) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLite) PutMemory(ctx context.Context, memory *model.Memory) error {
	tags, err := encodeTags(memory.Tags)
	if err != nil {
		return err
	}
	embedding, err := encodeEmbedding(memory.Embedding)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO memories (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", memoryColumns)
	_, err = r.db.ExecContext(ctx, query,
		string(memory.ID),
		memory.Subject,
		memory.Content,
		tags,
		memory.Importance,
		embedding,
		memory.AccessCount,
		nullMillis(memory.LastAccessed),
		memory.CreatedAt.UnixMilli(),
		memory.UpdatedAt.UnixMilli(),
		nullMillis(memory.ExpiresAt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("id", memory.ID))
	}

	return nil
}

func (r *SQLite) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	query := fmt.Sprintf("SELECT %s FROM memories WHERE id = ?", memoryColumns)
	row := r.db.QueryRowContext(ctx, query, string(id))

	memory, err := scanMemory(ctx, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}

	return memory, nil
}

func (r *SQLite) UpdateMemory(ctx context.Context, id model.MemoryID, patch *Patch) error {
	if patch == nil || patch.Empty() {
		return nil
	}

	now := time.Now()
	sets := []string{"updated_at = ?"}
	args := []any{now.UnixMilli()}

	if patch.Subject != nil {
		sets = append(sets, "subject = ?")
		args = append(args, *patch.Subject)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Tags != nil {
		tags, err := encodeTags(*patch.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *patch.Importance)
	}

	// Explicit expiry wins over a relative TTL supplied in the same patch.
	if patch.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, patch.ExpiresAt.UnixMilli())
	} else if patch.TTLDays != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, model.ExpiryFromTTL(now, *patch.TTLDays).UnixMilli())
	}

	if patch.Embedding != nil {
		embedding, err := encodeEmbedding(patch.Embedding)
		if err != nil {
			return err
		}
		sets = append(sets, "embedding = ?")
		args = append(args, embedding)
	}

	args = append(args, string(id))
	query := "UPDATE memories SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return goerr.Wrap(err, "failed to update memory", goerr.V("id", id))
	}

	return nil
}

func (r *SQLite) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}
	return nil
}

func (r *SQLite) ListMemories(ctx context.Context, limit int) ([]*model.Memory, error) {
	query := fmt.Sprintf("SELECT %s FROM memories ORDER BY updated_at DESC, rowid DESC LIMIT ?", memoryColumns)
	return r.queryMemories(ctx, query, limit)
}

func (r *SQLite) ListEmbedded(ctx context.Context, limit int) ([]*model.Memory, error) {
	query := fmt.Sprintf("SELECT %s FROM memories WHERE embedding IS NOT NULL ORDER BY updated_at DESC, rowid DESC LIMIT ?", memoryColumns)
	return r.queryMemories(ctx, query, limit)
}

func (r *SQLite) SearchText(ctx context.Context, query string, limit int) ([]*model.Memory, error) {
	if r.fullText {
		matched, err := r.searchFullText(ctx, query, limit)
		if err == nil {
			return matched, nil
		}
		// FTS5 rejects some user input as malformed match expressions.
		logging.From(ctx).Warn("full-text query failed, using substring fallback",
			"query", query, "error", err)
	}

	return r.searchSubstring(ctx, query, limit)
}

func (r *SQLite) searchFullText(ctx context.Context, query string, limit int) ([]*model.Memory, error) {
	stmt := fmt.Sprintf(`
SELECT %s FROM memories m
JOIN memories_fts f ON m.rowid = f.rowid
WHERE memories_fts MATCH ?
ORDER BY f.rank
LIMIT ?`, prefixColumns("m"))

	rows, err := r.db.QueryContext(ctx, stmt, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(ctx, rows)
}

func (r *SQLite) searchSubstring(ctx context.Context, query string, limit int) ([]*model.Memory, error) {
	pattern := "%" + escapeLike(query) + "%"
	stmt := fmt.Sprintf(`
SELECT %s FROM memories
WHERE subject LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
ORDER BY updated_at DESC, rowid DESC
LIMIT ?`, memoryColumns)

	rows, err := r.db.QueryContext(ctx, stmt, pattern, pattern, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed substring search", goerr.V("query", query))
	}
	defer rows.Close()

	return collectMemories(ctx, rows)
}

func (r *SQLite) ExportMemories(ctx context.Context) ([]*model.Memory, error) {
	query := fmt.Sprintf("SELECT %s FROM memories ORDER BY created_at ASC, rowid ASC", memoryColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to export memories")
	}
	defer rows.Close()

	return collectMemories(ctx, rows)
}

func (r *SQLite) ImportMemories(ctx context.Context, memories []*model.Memory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin import transaction")
	}

	query := fmt.Sprintf("INSERT INTO memories (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", memoryColumns)
	for _, memory := range memories {
		tags, err := encodeTags(memory.Tags)
		if err != nil {
			return r.rollbackImport(ctx, tx, err)
		}
		embedding, err := encodeEmbedding(memory.Embedding)
		if err != nil {
			return r.rollbackImport(ctx, tx, err)
		}

		_, err = tx.ExecContext(ctx, query,
			string(memory.ID),
			memory.Subject,
			memory.Content,
			tags,
			memory.Importance,
			embedding,
			memory.AccessCount,
			nullMillis(memory.LastAccessed),
			memory.CreatedAt.UnixMilli(),
			memory.UpdatedAt.UnixMilli(),
			nullMillis(memory.ExpiresAt),
		)
		if err != nil {
			return r.rollbackImport(ctx, tx,
				goerr.Wrap(err, "failed to import memory", goerr.V("id", memory.ID)))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit import transaction")
	}

	return nil
}

// rollbackImport swallows the rollback error so the original cause is the
// one surfaced to the caller.
func (r *SQLite) rollbackImport(ctx context.Context, tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		logging.From(ctx).Warn("failed to rollback import transaction", "error", err)
	}
	return cause
}

func (r *SQLite) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?",
		time.Now().UnixMilli())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to cleanup expired memories")
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count expired memories")
	}
	return deleted, nil
}

func (r *SQLite) TouchMemories(ctx context.Context, ids []model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UnixMilli())
	for _, id := range ids {
		args = append(args, string(id))
	}

	query := "UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id IN (" + placeholders + ")"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return goerr.Wrap(err, "failed to touch memories")
	}

	return nil
}

func (r *SQLite) queryMemories(ctx context.Context, query string, limit int) ([]*model.Memory, error) {
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories")
	}
	defer rows.Close()

	return collectMemories(ctx, rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory maps one storage row onto a Memory with an explicit, total
// conversion: type-confused primary columns fail loudly, while a malformed
// embedding or tag blob degrades to the empty value.
func scanMemory(ctx context.Context, row rowScanner) (*model.Memory, error) {
	var (
		id, subject, content    string
		tags, embedding         sql.NullString
		importance              float64
		accessCount             int64
		lastAccessed, expiresAt sql.NullInt64
		createdAt, updatedAt    int64
	)

	if err := row.Scan(&id, &subject, &content, &tags, &importance, &embedding,
		&accessCount, &lastAccessed, &createdAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}

	memory := &model.Memory{
		ID:           model.MemoryID(id),
		Subject:      subject,
		Content:      content,
		Tags:         decodeTags(ctx, tags),
		Importance:   importance,
		Embedding:    decodeEmbedding(ctx, embedding),
		AccessCount:  accessCount,
		LastAccessed: millisTime(lastAccessed),
		CreatedAt:    time.UnixMilli(createdAt),
		UpdatedAt:    time.UnixMilli(updatedAt),
		ExpiresAt:    millisTime(expiresAt),
	}

	return memory, nil
}

func collectMemories(ctx context.Context, rows *sql.Rows) ([]*model.Memory, error) {
	var memories []*model.Memory
	for rows.Next() {
		memory, err := scanMemory(ctx, rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	return memories, nil
}

// encodeEmbedding serializes a vector for the embedding column. The encoding
// is private to this package; no other component touches the raw form.
func encodeEmbedding(vec []float32) (any, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode embedding")
	}
	return string(raw), nil
}

// decodeEmbedding reads the stored vector back. A malformed blob is treated
// as "no vector" rather than a read failure.
func decodeEmbedding(ctx context.Context, raw sql.NullString) []float32 {
	if !raw.Valid || raw.String == "" {
		return nil
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw.String), &vec); err != nil {
		logging.From(ctx).Warn("dropping malformed stored embedding", "error", err)
		return nil
	}
	return vec
}

func encodeTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode tags")
	}
	return string(raw), nil
}

func decodeTags(ctx context.Context, raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		logging.From(ctx).Warn("dropping malformed stored tags", "error", err)
		return nil
	}
	return tags
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// escapeLike escapes the LIKE metacharacters so user input is matched
// literally in the substring fallback.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// prefixColumns qualifies the shared column list with a table alias for
// joined queries.
func prefixColumns(alias string) string {
	cols := strings.Split(memoryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
