package domain

import (
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// AllowedHosts lists the media-site hosts a link may point at
var AllowedHosts = []string{
	"youtube.com",
	"www.youtube.com",
	"m.youtube.com",
	"music.youtube.com",
	"youtu.be",
}

// shortLinkHosts carry the identifier as the first path segment
var shortLinkHosts = []string{"youtu.be"}

// idPathPrefixes carry the identifier as the segment after the prefix
var idPathPrefixes = []string{"shorts", "embed", "live", "v"}

// shellMetaChars may never reach a file path or a subprocess argument
var shellMetaChars = []string{";", "|", "$", "`", "\n", "\r", "<", ">", "\x00"}

// IsValidIdentifier reports whether s is an 11-character media identifier
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ResolveIdentifier extracts a stable identifier from a link or bare id.
// It returns false when none can be derived; the raw input is then a search query.
func ResolveIdentifier(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if IsValidIdentifier(s) {
		return s, true
	}

	u, err := url.Parse(withScheme(s))
	if err != nil {
		return "", false
	}

	if v := u.Query().Get("v"); IsValidIdentifier(v) {
		return v, true
	}

	host := strings.ToLower(u.Hostname())
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", false
	}

	for _, h := range shortLinkHosts {
		if host == h && IsValidIdentifier(segments[0]) {
			return segments[0], true
		}
	}

	if isAllowedHost(host) && len(segments) >= 2 {
		for _, prefix := range idPathPrefixes {
			if segments[0] == prefix && IsValidIdentifier(segments[1]) {
				return segments[1], true
			}
		}
	}

	return "", false
}

// IsSafeReference classifies input before it is used to build a file path
// or a subprocess argument. Denylisted characters are rejected in raw and
// percent-decoded form. Inputs that are not URLs are otherwise safe.
func IsSafeReference(input string) bool {
	if containsShellMeta(input) {
		return false
	}
	if decoded, err := url.QueryUnescape(input); err == nil && containsShellMeta(decoded) {
		return false
	}
	if decoded, err := url.PathUnescape(input); err == nil && containsShellMeta(decoded) {
		return false
	}

	if !LooksLikeURL(input) {
		return true
	}

	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return isAllowedHost(strings.ToLower(u.Hostname()))
}

// LooksLikeURL reports whether input carries a scheme
func LooksLikeURL(input string) bool {
	return strings.Contains(input, "://")
}

// Resolve builds the full resolution record for a link and variant
func Resolve(raw string, variant Variant) Resolution {
	res := Resolution{
		Input: raw,
		Safe:  IsSafeReference(raw),
		IsURL: LooksLikeURL(raw),
	}
	if id, ok := ResolveIdentifier(raw); ok {
		res.Identifier = id
		res.Key = NewContentKey(variant, id)
	} else {
		res.Key = NewContentKey(variant, strings.TrimSpace(raw))
	}
	return res
}

// WatchURL returns the canonical link for an identifier
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func isAllowedHost(host string) bool {
	for _, h := range AllowedHosts {
		if host == h {
			return true
		}
	}
	return false
}

func withScheme(s string) string {
	if LooksLikeURL(s) {
		return s
	}
	return "https://" + s
}

func containsShellMeta(s string) bool {
	for _, c := range shellMetaChars {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}
