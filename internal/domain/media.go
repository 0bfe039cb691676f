package domain

import (
	"fmt"
	"strings"
)

// Variant selects which rendition of a piece of media is requested
type Variant string

const (
	VariantAudio Variant = "audio"
	VariantVideo Variant = "video"
)

// VariantFromVideoFlag maps the upstream isVideo flag to a variant
func VariantFromVideoFlag(video bool) Variant {
	if video {
		return VariantVideo
	}
	return VariantAudio
}

// ParseVariant parses a variant name, defaulting to audio when empty
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "audio":
		return VariantAudio, nil
	case "video":
		return VariantVideo, nil
	default:
		return "", fmt.Errorf("invalid variant: %s", s)
	}
}

// IsVideo reports whether the variant is the video rendition
func (v Variant) IsVideo() bool {
	return v == VariantVideo
}

// Ext returns the file extension used for the variant
func (v Variant) Ext() string {
	if v.IsVideo() {
		return "mp4"
	}
	return "m4a"
}

// Dir returns the directory name used for the variant
func (v Variant) Dir() string {
	if v.IsVideo() {
		return "video"
	}
	return "audio"
}

// ContentKey identifies a requested asset+variant pair.
// It is both the single-flight key and stable across retries.
type ContentKey string

// NewContentKey builds the key from an identifier, or the raw query when none resolved
func NewContentKey(variant Variant, idOrQuery string) ContentKey {
	return ContentKey(string(variant) + ":" + idOrQuery)
}

// JobStatus is inferred from the shape of a poll payload
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Job is one upstream asynchronous download task. It lives only for the
// duration of a single acquisition cycle.
type Job struct {
	ID        string
	Status    JobStatus
	Candidate string
	Polls     int
}

// IsTerminal reports whether polling should stop
func (j *Job) IsTerminal() bool {
	return j.Status == JobDone || j.Status == JobError
}

// Resolution is the pure result of resolving a link
type Resolution struct {
	Input      string     `json:"input"`
	Identifier string     `json:"identifier,omitempty"`
	Key        ContentKey `json:"key"`
	Safe       bool       `json:"safe"`
	IsURL      bool       `json:"is_url"`
}

// Tier names one stage in the fallback chain
type Tier string

const (
	TierCache  Tier = "cache"
	TierStore  Tier = "store"
	TierJobAPI Tier = "job_api"
	TierLegacy Tier = "legacy"
)

// AcquisitionResult is what every caller on a key receives. Shared is set
// for callers that joined an execution started by another caller.
type AcquisitionResult struct {
	Key      ContentKey    `json:"key"`
	FilePath string        `json:"file_path,omitempty"`
	Tier     Tier          `json:"tier,omitempty"`
	Reason   FailureReason `json:"reason,omitempty"`
	Shared   bool          `json:"shared"`
}

// Succeeded reports whether a file was produced
func (r *AcquisitionResult) Succeeded() bool {
	return r.FilePath != ""
}
