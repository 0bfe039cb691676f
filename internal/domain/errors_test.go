package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailureReason
	}{
		{name: "nil", err: nil, expected: ReasonNone},
		{name: "hard api error", err: NewHardAPIError(401, "denied"), expected: ReasonAuthFailure},
		{name: "wrapped hard api error", err: fmt.Errorf("submit: %w", NewHardAPIError(403, "")), expected: ReasonAuthFailure},
		{name: "wrapped timeout", err: fmt.Errorf("acquire: %w", ErrTimeout), expected: ReasonTimeout},
		{name: "deadline", err: context.DeadlineExceeded, expected: ReasonTimeout},
		{name: "unsafe", err: ErrUnsafeReference, expected: ReasonUnsafe},
		{name: "locator", err: fmt.Errorf("%w: internal path", ErrInvalidLocator), expected: ReasonInvalid},
		{name: "empty", err: ErrEmptyResult, expected: ReasonEmptyResult},
		{name: "no candidate", err: ErrNoCandidate, expected: ReasonNoCandidate},
		{name: "not found", err: ErrNotFound, expected: ReasonNotFound},
		{name: "all tiers", err: ErrAllTiersFailed, expected: ReasonAllTiers},
		{name: "transient", err: fmt.Errorf("%w: 503", ErrTransient), expected: ReasonTransient},
		{name: "other", err: errors.New("boom"), expected: ReasonUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestHardAPIError(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}

	err := NewHardAPIError(403, string(long))
	assert.Len(t, err.BodyPreview, 200)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, "hard api error status=403", err.Error())
}

func TestFloodWaitError(t *testing.T) {
	var err error = &FloodWaitError{Wait: 30 * time.Second}

	var flood *FloodWaitError
	assert.True(t, errors.As(fmt.Errorf("fetch: %w", err), &flood))
	assert.Equal(t, 30*time.Second, flood.Wait)
	assert.Contains(t, err.Error(), "30s")
}
