package infrastructure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/music-miko/t/internal/domain"
)

// LocatorKeys are the fields that may carry a result locator, in priority order
var LocatorKeys = []string{
	"public_url",
	"cdn_url",
	"cdnurl",
	"download_url",
	"url",
	"tg_link",
	"telegram_link",
	"message_link",
}

// WrapperKeys are generic envelopes searched depth-first for a locator
var WrapperKeys = []string{"result", "results", "data", "items", "payload", "message"}

// StatusVocabulary marks in-progress messages the API reuses locator fields for
var StatusVocabulary = []string{
	"queued",
	"processing",
	"started",
	"background",
	"jobstatus",
	"job_id",
	"job id",
}

const maxPayloadDepth = 8

// DecodePayload parses a response body into a generic tree of
// map[string]any, []any, string and json.Number values.
func DecodePayload(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}

// ExtractCandidate returns the first non-empty string found under a
// recognized key, or "" when the payload carries none.
func ExtractCandidate(payload any) string {
	return extractCandidate(payload, 0)
}

func extractCandidate(node any, depth int) string {
	if depth > maxPayloadDepth {
		return ""
	}

	switch v := node.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) == 0 {
			return ""
		}
		return extractCandidate(v[0], depth+1)
	case map[string]any:
		if job, ok := v["job"].(map[string]any); ok {
			if result, ok := job["result"].(map[string]any); ok {
				if s := locatorField(result); s != "" {
					return s
				}
			}
		}
		if s := locatorField(v); s != "" {
			return s
		}
		for _, key := range WrapperKeys {
			inner, ok := v[key]
			if !ok || inner == nil {
				continue
			}
			if s := extractCandidate(inner, depth+1); s != "" {
				return s
			}
		}
	}
	return ""
}

func locatorField(m map[string]any) string {
	for _, key := range LocatorKeys {
		if s, ok := m[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// LooksLikeStatusText reports whether s is a progress message rather than a locator
func LooksLikeStatusText(s string) bool {
	if s == "" {
		return false
	}
	low := strings.ToLower(s)
	for _, word := range StatusVocabulary {
		if strings.Contains(low, word) {
			return true
		}
	}
	return false
}

// ValidCandidate extracts a locator and discards status text
func ValidCandidate(payload any) string {
	candidate := ExtractCandidate(payload)
	if LooksLikeStatusText(candidate) {
		return ""
	}
	return candidate
}

// ExtractJobID reads job_id, a scalar job field, or job.id
func ExtractJobID(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if id := scalarString(m["job_id"]); id != "" {
		return id
	}
	switch job := m["job"].(type) {
	case map[string]any:
		return scalarString(job["id"])
	default:
		return scalarString(job)
	}
}

// JobStatusOf infers the job status. A validated candidate means done;
// an explicit "error" status is the only other terminal state.
func JobStatusOf(payload any) domain.JobStatus {
	if ValidCandidate(payload) != "" {
		return domain.JobDone
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return domain.JobPending
	}
	status := scalarString(m["status"])
	if job, ok := m["job"].(map[string]any); ok {
		if s := scalarString(job["status"]); s != "" {
			status = s
		}
	}
	if strings.EqualFold(status, string(domain.JobError)) {
		return domain.JobError
	}
	return domain.JobPending
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}
