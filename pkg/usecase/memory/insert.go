package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
)

// InsertInput contains the fields for creating a memory record. Embedding
// is transport-internal: when absent it is derived server-side from
// subject and content.
type InsertInput struct {
	Subject    string
	Content    string
	Tags       []string
	TTLDays    *float64
	Importance *float64
	Embedding  []float32
}

func (x *InsertInput) validate(contentLimit int) error {
	if err := model.ValidateSubject(x.Subject); err != nil {
		return err
	}
	if err := model.ValidateContent(x.Content, contentLimit); err != nil {
		return err
	}
	if err := model.ValidateTags(x.Tags); err != nil {
		return err
	}
	if x.TTLDays != nil {
		if err := model.ValidateTTL(*x.TTLDays); err != nil {
			return err
		}
	}
	return nil
}

// Insert validates the input, assigns identity and timestamps, derives the
// embedding when possible, and persists the record.
func (u *UseCase) Insert(ctx context.Context, input InsertInput) (*model.Memory, error) {
	if err := input.validate(u.contentLimit); err != nil {
		return nil, err
	}

	now := time.Now()
	memory := &model.Memory{
		ID:         model.NewMemoryID(),
		Subject:    input.Subject,
		Content:    input.Content,
		Tags:       input.Tags,
		Importance: model.DefaultImportance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if input.Importance != nil {
		memory.Importance = clamp01(*input.Importance)
	}
	if input.TTLDays != nil {
		expiry := model.ExpiryFromTTL(now, *input.TTLDays)
		memory.ExpiresAt = &expiry
	}

	if embedding := model.NormalizeEmbedding(input.Embedding); embedding != nil {
		memory.Embedding = embedding
	} else {
		memory.Embedding = u.embedDocument(ctx, input.Subject, input.Content)
	}

	if err := u.repo.PutMemory(ctx, memory); err != nil {
		return nil, err
	}

	return memory, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
