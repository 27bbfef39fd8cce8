package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1280, cfg.Matcher.MinWidth)
	assert.Equal(t, 10, cfg.Matcher.PerPage)
	assert.Equal(t, 3, cfg.Matcher.MaxAttempts)
	assert.Equal(t, 100.0, cfg.Matcher.Weights.Cap)

	assert.Equal(t, 1920, cfg.Encoding.Width)
	assert.Equal(t, 1080, cfg.Encoding.Height)
	assert.Equal(t, 30, cfg.Encoding.FPS)
	assert.Equal(t, "libx264", cfg.Encoding.VideoCodec)
	assert.Equal(t, "aac", cfg.Encoding.AudioCodec)

	assert.Equal(t, 5*time.Minute, cfg.Synthesis.Timeout())
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.SceneTimeout())
	assert.Equal(t, 3, cfg.Pipeline.SceneWorkers)
	assert.False(t, cfg.Pipeline.LoopShortClips)
	assert.False(t, cfg.Pipeline.SkipFailedScenes)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
matcher:
  min_width: 1920
pipeline:
  scene_workers: 8
  loop_short_clips: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, 1920, cfg.Matcher.MinWidth)
	assert.Equal(t, 8, cfg.Pipeline.SceneWorkers)
	assert.True(t, cfg.Pipeline.LoopShortClips)

	// Untouched values keep their defaults.
	assert.Equal(t, 10, cfg.Matcher.PerPage)
	assert.Equal(t, "medium", cfg.Encoding.Preset)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesSynthesisService(t *testing.T) {
	t.Setenv("INDEXTTS_URL", "http://10.0.0.5:7861")
	t.Setenv("INDEXTTS_REFERENCE_AUDIO", "/voices/narrator.wav")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:7861", cfg.Synthesis.URL)
	assert.Equal(t, "/voices/narrator.wav", cfg.Synthesis.ReferenceAudio)
}

func TestFrameInterval(t *testing.T) {
	p := EncodingProfile{FPS: 30}
	assert.InDelta(t, 1.0/30.0, p.FrameInterval(), 1e-9)

	// Zero fps falls back instead of dividing by zero.
	p.FPS = 0
	assert.InDelta(t, 1.0/30.0, p.FrameInterval(), 1e-9)
}
