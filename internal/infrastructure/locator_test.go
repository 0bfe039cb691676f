package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-miko/t/internal/domain"
)

func TestLocatorNormalizer_Normalize(t *testing.T) {
	n := NewLocatorNormalizer("https://api.example.com/", []string{"/root", "/home"})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "absolute https", input: "https://cdn.example.com/a/b.mp4", expected: "https://cdn.example.com/a/b.mp4"},
		{name: "absolute http", input: "http://x/y", expected: "http://x/y"},
		{name: "relative path", input: "clips/out.mp4", expected: "https://api.example.com/clips/out.mp4"},
		{name: "server relative", input: "/files/out.m4a", expected: "https://api.example.com/files/out.m4a"},
		{name: "bare filename", input: "out.m4a", expected: "https://api.example.com/out.m4a"},
		{name: "surrounding spaces", input: "  clips/out.mp4  ", expected: "https://api.example.com/clips/out.mp4"},
		{name: "home lookalike is not internal", input: "/homepage/a.mp4", expected: "https://api.example.com/homepage/a.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLocatorNormalizer_RejectsInternalPaths(t *testing.T) {
	n := NewLocatorNormalizer("https://api.example.com", []string{"/root", "/home"})

	for _, input := range []string{"/root/data/out.mp4", "/home/admin/downloads/x.m4a", "/root", ""} {
		got, err := n.Normalize(input)
		assert.ErrorIs(t, err, domain.ErrInvalidLocator, input)
		assert.Empty(t, got)
	}
}

func TestLocatorNormalizer_RelativeWithoutBase(t *testing.T) {
	n := NewLocatorNormalizer("", nil)

	_, err := n.Normalize("clips/out.mp4")
	assert.ErrorIs(t, err, domain.ErrInvalidLocator)

	got, err := n.Normalize("https://cdn.example.com/x.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.mp4", got)
}
