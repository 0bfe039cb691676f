package infrastructure

import (
	"path/filepath"
	"strings"
)

// shellSpecialChars have meaning to a POSIX shell
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// redactedFlags take a secret-bearing path as their value
var redactedFlags = map[string]bool{"--cookies": true}

// QuoteArg single-quotes s for display when it contains shell-special characters.
// Subprocesses are always started without a shell; this is for logs only.
func QuoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// FormatCommand renders a command line for the tool log. Values of
// secret-bearing flags are reduced to their base name.
func FormatCommand(binary string, args ...string) string {
	var b strings.Builder
	b.WriteString(QuoteArg(binary))

	redactNext := false
	for _, arg := range args {
		b.WriteByte(' ')
		if redactNext {
			b.WriteString(QuoteArg(filepath.Base(arg)))
			redactNext = false
			continue
		}
		b.WriteString(QuoteArg(arg))
		redactNext = redactedFlags[arg]
	}
	return b.String()
}
