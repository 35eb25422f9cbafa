package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/repository"
)

// UpdateInput contains the optional fields of a partial update. When both
// ExpiresAt and TTLDays are supplied, ExpiresAt wins.
type UpdateInput struct {
	Subject    *string
	Content    *string
	Tags       *[]string
	Importance *float64
	TTLDays    *float64
	ExpiresAt  *time.Time
}

func (x *UpdateInput) validate(contentLimit int) error {
	if x.Subject != nil {
		if err := model.ValidateSubject(*x.Subject); err != nil {
			return err
		}
	}
	if x.Content != nil {
		if err := model.ValidateContent(*x.Content, contentLimit); err != nil {
			return err
		}
	}
	if x.Tags != nil {
		if err := model.ValidateTags(*x.Tags); err != nil {
			return err
		}
	}
	if x.TTLDays != nil {
		if err := model.ValidateTTL(*x.TTLDays); err != nil {
			return err
		}
	}
	return nil
}

func (x *UpdateInput) empty() bool {
	return x.Subject == nil && x.Content == nil && x.Tags == nil &&
		x.Importance == nil && x.TTLDays == nil && x.ExpiresAt == nil
}

// Update applies a partial patch to an existing record. Updating a missing
// ID is a no-op and returns (nil, nil). When subject or content changes and
// an embedder is available, the stored vector is re-derived; an embedding
// failure leaves the vector untouched.
func (u *UseCase) Update(ctx context.Context, id model.MemoryID, input UpdateInput) (*model.Memory, error) {
	if err := input.validate(u.contentLimit); err != nil {
		return nil, err
	}

	existing, err := u.repo.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if input.empty() {
		return existing, nil
	}

	patch := &repository.Patch{
		Subject:   input.Subject,
		Content:   input.Content,
		Tags:      input.Tags,
		TTLDays:   input.TTLDays,
		ExpiresAt: input.ExpiresAt,
	}
	if input.Importance != nil {
		importance := clamp01(*input.Importance)
		patch.Importance = &importance
	}

	if input.Subject != nil || input.Content != nil {
		subject := existing.Subject
		if input.Subject != nil {
			subject = *input.Subject
		}
		content := existing.Content
		if input.Content != nil {
			content = *input.Content
		}
		patch.Embedding = u.embedDocument(ctx, subject, content)
	}

	if err := u.repo.UpdateMemory(ctx, id, patch); err != nil {
		return nil, err
	}

	return u.repo.GetMemory(ctx, id)
}
