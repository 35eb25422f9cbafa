package model_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestValidateSubject(t *testing.T) {
	gt.NoError(t, model.ValidateSubject("favorite color"))
	gt.Error(t, model.ValidateSubject(""))
	gt.Error(t, model.ValidateSubject(strings.Repeat("x", model.MaxSubjectLength+1)))
	gt.NoError(t, model.ValidateSubject(strings.Repeat("x", model.MaxSubjectLength)))
}

func TestValidateContent(t *testing.T) {
	gt.NoError(t, model.ValidateContent("blue", 1000))
	gt.Error(t, model.ValidateContent("", 1000))
	gt.Error(t, model.ValidateContent(strings.Repeat("x", 1001), 1000))

	// A non-positive limit falls back to the default profile.
	gt.NoError(t, model.ValidateContent(strings.Repeat("x", model.MaxContentLength), 0))
	gt.Error(t, model.ValidateContent(strings.Repeat("x", model.MaxContentLength+1), 0))
}

func TestValidateTags(t *testing.T) {
	gt.NoError(t, model.ValidateTags(nil))
	gt.NoError(t, model.ValidateTags(make([]string, model.MaxTagCount)))
	gt.Error(t, model.ValidateTags(make([]string, model.MaxTagCount+1)))
}

func TestValidateTTL(t *testing.T) {
	gt.NoError(t, model.ValidateTTL(7))
	gt.NoError(t, model.ValidateTTL(-1))
	gt.Error(t, model.ValidateTTL(math.NaN()))
	gt.Error(t, model.ValidateTTL(math.Inf(1)))
}

func TestExpiryFromTTL(t *testing.T) {
	now := time.Now()

	gt.Equal(t, model.ExpiryFromTTL(now, 1), now.Add(24*time.Hour))
	gt.Equal(t, model.ExpiryFromTTL(now, -1), now.Add(-24*time.Hour))
	gt.Equal(t, model.ExpiryFromTTL(now, 0.5), now.Add(12*time.Hour))
}

func TestExpiryFromTTLSaturates(t *testing.T) {
	now := time.Now()

	far := model.ExpiryFromTTL(now, 1e300)
	gt.Equal(t, far.After(now), true)

	past := model.ExpiryFromTTL(now, -1e300)
	gt.Equal(t, past.Before(now), true)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	gt.Equal(t, (&model.Memory{}).Expired(now), false)
	gt.Equal(t, (&model.Memory{ExpiresAt: &future}).Expired(now), false)
	gt.Equal(t, (&model.Memory{ExpiresAt: &past}).Expired(now), true)
}

func TestNewMemoryIDUnique(t *testing.T) {
	seen := map[model.MemoryID]bool{}
	for i := 0; i < 100; i++ {
		id := model.NewMemoryID()
		gt.Equal(t, seen[id], false)
		seen[id] = true
	}
}
