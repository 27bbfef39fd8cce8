package storyboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignsIndicesAndDefaults(t *testing.T) {
	data := []byte(`
title: Harbor Morning
scenes:
  - narration: dawn over the harbor
    keyword_hint: [harbor, sunrise]
    duration: 4.5
  - narration: fishermen casting nets
`)
	sb, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "Harbor Morning", sb.Title)
	require.Len(t, sb.Scenes, 2)

	assert.Equal(t, 0, sb.Scenes[0].Index)
	assert.Equal(t, 4.5, sb.Scenes[0].TargetDuration)
	assert.Equal(t, []string{"harbor", "sunrise"}, sb.Scenes[0].KeywordHint)

	assert.Equal(t, 1, sb.Scenes[1].Index)
	assert.Equal(t, defaultSceneDuration, sb.Scenes[1].TargetDuration)
}

func TestParseRejectsEmptyStoryboard(t *testing.T) {
	_, err := Parse([]byte(`title: Nothing`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenes")
}

func TestParseRejectsEmptyNarration(t *testing.T) {
	data := []byte(`
scenes:
  - narration: fine
  - narration: "   "
`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 1")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("scenes: ["))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenes:\n  - narration: hello\n"), 0644))

	sb, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sb.Scenes, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
