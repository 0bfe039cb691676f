package infrastructure

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/music-miko/t/internal/domain"
)

// LocatorNormalizer turns job API locators into fetchable absolute URLs
type LocatorNormalizer struct {
	baseURL          string
	internalPrefixes []string
}

// NewLocatorNormalizer creates a normalizer rooted at the API base URL
func NewLocatorNormalizer(baseURL string, internalPrefixes []string) *LocatorNormalizer {
	return &LocatorNormalizer{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		internalPrefixes: internalPrefixes,
	}
}

// Normalize passes absolute http(s) locators through, rejects backend
// filesystem paths and joins everything else onto the base URL.
func (n *LocatorNormalizer) Normalize(locator string) (string, error) {
	c := strings.TrimSpace(locator)
	if c == "" {
		return "", fmt.Errorf("%w: empty locator", domain.ErrInvalidLocator)
	}

	if strings.HasPrefix(c, "http://") || strings.HasPrefix(c, "https://") {
		if _, err := url.ParseRequestURI(c); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidLocator, err)
		}
		return c, nil
	}

	if n.isInternalPath(c) {
		return "", fmt.Errorf("%w: internal path %s", domain.ErrInvalidLocator, c)
	}
	if n.baseURL == "" {
		return "", fmt.Errorf("%w: no base url for relative locator", domain.ErrInvalidLocator)
	}

	var joined string
	if strings.HasPrefix(c, "/") {
		joined = n.baseURL + c
	} else {
		joined = n.baseURL + "/" + c
	}
	if _, err := url.ParseRequestURI(joined); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidLocator, err)
	}
	return joined, nil
}

func (n *LocatorNormalizer) isInternalPath(c string) bool {
	for _, prefix := range n.internalPrefixes {
		if c == prefix || strings.HasPrefix(c, strings.TrimRight(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
