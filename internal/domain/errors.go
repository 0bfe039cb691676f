package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Acquisition error taxonomy. Only ErrAuthFailure aborts the whole
// pipeline; every other failure advances to the next tier.
var (
	ErrAuthFailure     = errors.New("job api rejected credentials")
	ErrTransient       = errors.New("transient network failure")
	ErrInvalidLocator  = errors.New("invalid locator")
	ErrEmptyResult     = errors.New("empty download result")
	ErrTimeout         = errors.New("acquisition timed out")
	ErrNoCandidate     = errors.New("no usable candidate")
	ErrUnsafeReference = errors.New("unsafe reference")
	ErrAllTiersFailed  = errors.New("all acquisition tiers failed")
	ErrNotFound        = errors.New("not found")
)

// HardAPIError is returned when the job API answers 401 or 403
type HardAPIError struct {
	Status      int
	BodyPreview string
}

func (e *HardAPIError) Error() string {
	return fmt.Sprintf("hard api error status=%d", e.Status)
}

func (e *HardAPIError) Unwrap() error {
	return ErrAuthFailure
}

// NewHardAPIError truncates the body preview to 200 bytes
func NewHardAPIError(status int, body string) *HardAPIError {
	if len(body) > 200 {
		body = body[:200]
	}
	return &HardAPIError{Status: status, BodyPreview: body}
}

// FloodWaitError is raised by the content store transport when it is throttled
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("content store throttled, retry after %s", e.Wait)
}

// FailureReason is a stable reason code exposed through logs and statistics
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonAuthFailure  FailureReason = "auth_failure"
	ReasonTransient    FailureReason = "transient_network_failure"
	ReasonInvalid      FailureReason = "invalid_locator"
	ReasonEmptyResult  FailureReason = "empty_result"
	ReasonTimeout      FailureReason = "timeout"
	ReasonNoCandidate  FailureReason = "no_candidate"
	ReasonUnsafe       FailureReason = "unsafe_reference"
	ReasonAllTiers     FailureReason = "all_tiers_failed"
	ReasonNotFound     FailureReason = "not_found"
	ReasonUnclassified FailureReason = "unclassified"
)

// Classify maps an error onto its failure reason
func Classify(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrAuthFailure):
		return ReasonAuthFailure
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrUnsafeReference):
		return ReasonUnsafe
	case errors.Is(err, ErrInvalidLocator):
		return ReasonInvalid
	case errors.Is(err, ErrEmptyResult):
		return ReasonEmptyResult
	case errors.Is(err, ErrNoCandidate):
		return ReasonNoCandidate
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAllTiersFailed):
		return ReasonAllTiers
	case errors.Is(err, ErrTransient):
		return ReasonTransient
	default:
		return ReasonUnclassified
	}
}
