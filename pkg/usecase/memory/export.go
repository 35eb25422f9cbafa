package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ImportItem is one record of an import batch. IDs and timestamps of the
// source material are deliberately absent: every imported record gets a
// fresh identity.
type ImportItem struct {
	Subject    string     `json:"subject" yaml:"subject"`
	Content    string     `json:"content" yaml:"content"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Importance *float64   `json:"importance,omitempty" yaml:"importance,omitempty"`
	TTLDays    *float64   `json:"ttl_days,omitempty" yaml:"ttl_days,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Export retrieves every live record in stable backup order (created_at
// ascending). Stored embeddings stay internal and are not exported.
func (u *UseCase) Export(ctx context.Context) ([]*model.Memory, error) {
	u.sweep(ctx)
	return u.repo.ExportMemories(ctx)
}

// Import inserts a batch of items in one all-or-nothing transaction. Every
// item is validated up front; each gets a fresh ID, fresh timestamps, and a
// freshly derived embedding when a provider is available.
func (u *UseCase) Import(ctx context.Context, items []ImportItem) (int, error) {
	if len(items) > model.MaxImportBatch {
		return 0, goerr.Wrap(model.ErrBatchTooLarge, "import batch too large",
			goerr.V("count", len(items)),
			goerr.V("max", model.MaxImportBatch))
	}

	now := time.Now()
	memories := make([]*model.Memory, 0, len(items))
	for i, item := range items {
		input := InsertInput{
			Subject: item.Subject,
			Content: item.Content,
			Tags:    item.Tags,
			TTLDays: item.TTLDays,
		}
		if err := input.validate(u.contentLimit); err != nil {
			return 0, goerr.Wrap(err, "invalid import item", goerr.V("index", i))
		}

		memory := &model.Memory{
			ID:         model.NewMemoryID(),
			Subject:    item.Subject,
			Content:    item.Content,
			Tags:       item.Tags,
			Importance: model.DefaultImportance,
			CreatedAt:  now,
			UpdatedAt:  now,
			Embedding:  u.embedDocument(ctx, item.Subject, item.Content),
		}
		if item.Importance != nil {
			memory.Importance = clamp01(*item.Importance)
		}
		if item.ExpiresAt != nil {
			expiry := *item.ExpiresAt
			memory.ExpiresAt = &expiry
		} else if item.TTLDays != nil {
			expiry := model.ExpiryFromTTL(now, *item.TTLDays)
			memory.ExpiresAt = &expiry
		}

		memories = append(memories, memory)
	}

	if err := u.repo.ImportMemories(ctx, memories); err != nil {
		return 0, err
	}

	return len(memories), nil
}
