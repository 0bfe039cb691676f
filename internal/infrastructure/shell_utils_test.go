package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "''"},
		{name: "plain path", input: "downloads/audio/%(id)s.%(ext)s", expected: "'downloads/audio/%(id)s.%(ext)s'"},
		{name: "bare word", input: "bestaudio/best", expected: "bestaudio/best"},
		{name: "link with query", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expected: "'https://www.youtube.com/watch?v=dQw4w9WgXcQ'"},
		{name: "spaces", input: "never gonna", expected: "'never gonna'"},
		{name: "single quote", input: "it's", expected: `'it'"'"'s'`},
		{name: "command substitution", input: "$(rm -rf /)", expected: "'$(rm -rf /)'"},
		{name: "separator", input: "--", expected: "--"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteArg(tt.input))
		})
	}
}

func TestFormatCommand_RedactsCookiePath(t *testing.T) {
	line := FormatCommand("yt-dlp",
		"--cookies", "/srv/secrets/cookies/account1.txt",
		"-f", "bestaudio/best",
		"--", "https://youtu.be/dQw4w9WgXcQ")

	assert.Equal(t, "yt-dlp --cookies account1.txt -f bestaudio/best -- https://youtu.be/dQw4w9WgXcQ", line)
	assert.NotContains(t, line, "/srv/secrets")
}

func TestFormatCommand_NoArgs(t *testing.T) {
	assert.Equal(t, "'/opt/my tools/yt-dlp'", FormatCommand("/opt/my tools/yt-dlp"))
}
