package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-miko/t/internal/domain"
)

func mustDecode(t *testing.T, body string) any {
	t.Helper()
	payload, err := DecodePayload([]byte(body))
	require.NoError(t, err)
	return payload
}

func TestExtractCandidate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "job result public url", body: `{"job":{"result":{"public_url":"http://x/y"}}}`, expected: "http://x/y"},
		{name: "bare string", body: `"  https://cdn/x.mp4 "`, expected: "https://cdn/x.mp4"},
		{name: "list first element", body: `[{"url":"https://cdn/a"},{"url":"https://cdn/b"}]`, expected: "https://cdn/a"},
		{name: "top level cdn url", body: `{"cdn_url":"https://cdn/c"}`, expected: "https://cdn/c"},
		{name: "key priority", body: `{"url":"https://cdn/late","public_url":"https://cdn/early"}`, expected: "https://cdn/early"},
		{name: "messaging link", body: `{"tg_link":"https://t.me/c/1/2"}`, expected: "https://t.me/c/1/2"},
		{name: "nested wrappers", body: `{"data":{"payload":{"results":[{"download_url":"files/a.m4a"}]}}}`, expected: "files/a.m4a"},
		{name: "blank value skipped", body: `{"public_url":"  ","url":"https://cdn/u"}`, expected: "https://cdn/u"},
		{name: "job result takes precedence", body: `{"url":"https://cdn/outer","job":{"result":{"url":"https://cdn/inner"}}}`, expected: "https://cdn/inner"},
		{name: "status field ignored", body: `{"status":"processing job_id=123"}`, expected: ""},
		{name: "numbers ignored", body: `{"url":42}`, expected: ""},
		{name: "empty list", body: `[]`, expected: ""},
		{name: "null", body: `null`, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractCandidate(mustDecode(t, tt.body)))
		})
	}
}

func TestLooksLikeStatusText(t *testing.T) {
	assert.True(t, LooksLikeStatusText("processing job_id=123"))
	assert.True(t, LooksLikeStatusText("Download started in background"))
	assert.True(t, LooksLikeStatusText("QUEUED"))
	assert.True(t, LooksLikeStatusText("Check /jobStatus for progress"))
	assert.False(t, LooksLikeStatusText("https://cdn.example.com/a.mp4"))
	assert.False(t, LooksLikeStatusText(""))
}

func TestValidCandidate_DiscardsStatusText(t *testing.T) {
	payload := mustDecode(t, `{"job_id":"abc","message":"Download started in background, poll jobStatus"}`)
	assert.Equal(t, "Download started in background, poll jobStatus", ExtractCandidate(payload))
	assert.Empty(t, ValidCandidate(payload))

	payload = mustDecode(t, `{"result":{"url":"https://cdn/ok.mp4"}}`)
	assert.Equal(t, "https://cdn/ok.mp4", ValidCandidate(payload))
}

func TestExtractJobID(t *testing.T) {
	assert.Equal(t, "abc", ExtractJobID(mustDecode(t, `{"job_id":"abc"}`)))
	assert.Equal(t, "12345678901234", ExtractJobID(mustDecode(t, `{"job_id":12345678901234}`)))
	assert.Equal(t, "77", ExtractJobID(mustDecode(t, `{"job":{"id":77,"status":"queued"}}`)))
	assert.Equal(t, "j-1", ExtractJobID(mustDecode(t, `{"job":"j-1"}`)))
	assert.Empty(t, ExtractJobID(mustDecode(t, `{"status":"ok"}`)))
	assert.Empty(t, ExtractJobID(mustDecode(t, `"https://cdn/x"`)))
}

func TestJobStatusOf(t *testing.T) {
	assert.Equal(t, domain.JobDone, JobStatusOf(mustDecode(t, `{"job":{"status":"done","result":{"public_url":"https://cdn/x"}}}`)))
	assert.Equal(t, domain.JobError, JobStatusOf(mustDecode(t, `{"job":{"status":"error"}}`)))
	assert.Equal(t, domain.JobError, JobStatusOf(mustDecode(t, `{"status":"ERROR"}`)))
	assert.Equal(t, domain.JobPending, JobStatusOf(mustDecode(t, `{"job":{"status":"done"}}`)))
	assert.Equal(t, domain.JobPending, JobStatusOf(mustDecode(t, `{"job":{"status":"processing","result":{"url":"processing"}}}`)))
}
