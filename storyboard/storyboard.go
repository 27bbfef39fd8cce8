// Package storyboard loads pre-split scene descriptors from storyboard
// files. The pipeline core takes scenes as given; how a script is
// segmented is an authoring concern, whether done by hand or by the
// optional analyzer in this package.
package storyboard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ryanfish1/mindvideo/types"
)

// defaultSceneDuration fills in a missing duration hint. The hint only
// steers candidate ranking; the synthesized audio decides the real length.
const defaultSceneDuration = 3.0

// Storyboard is an ordered set of scenes for one video.
type Storyboard struct {
	Title  string        `yaml:"title" json:"title"`
	Scenes []types.Scene `yaml:"scenes" json:"scenes"`
}

// Load reads a yaml (or json) storyboard file.
func Load(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storyboard: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates storyboard bytes.
func Parse(data []byte) (*Storyboard, error) {
	var sb Storyboard
	if err := yaml.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("parse storyboard: %w", err)
	}
	if err := sb.validate(); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (s *Storyboard) validate() error {
	if len(s.Scenes) == 0 {
		return fmt.Errorf("storyboard has no scenes")
	}
	for i := range s.Scenes {
		scene := &s.Scenes[i]
		scene.Index = i
		if strings.TrimSpace(scene.Narration) == "" {
			return fmt.Errorf("storyboard scene %d has empty narration", i)
		}
		if scene.TargetDuration <= 0 {
			scene.TargetDuration = defaultSceneDuration
		}
	}
	return nil
}
