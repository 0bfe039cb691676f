package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantAudio, v)

	v, err = ParseVariant("VIDEO")
	require.NoError(t, err)
	assert.Equal(t, VariantVideo, v)

	_, err = ParseVariant("hologram")
	assert.Error(t, err)
}

func TestVariant_Layout(t *testing.T) {
	assert.Equal(t, "m4a", VariantAudio.Ext())
	assert.Equal(t, "mp4", VariantVideo.Ext())
	assert.Equal(t, "audio", VariantAudio.Dir())
	assert.Equal(t, "video", VariantVideo.Dir())
	assert.Equal(t, VariantVideo, VariantFromVideoFlag(true))
	assert.Equal(t, VariantAudio, VariantFromVideoFlag(false))
}

func TestJob_IsTerminal(t *testing.T) {
	job := &Job{ID: "42", Status: JobPending}
	assert.False(t, job.IsTerminal())

	job.Status = JobDone
	assert.True(t, job.IsTerminal())

	job.Status = JobError
	assert.True(t, job.IsTerminal())
}
