package synthesis

import (
	"errors"
	"fmt"
)

// ErrInvalidVoice reports voice parameters rejected at the boundary.
// Out-of-range values are never clamped: a silently slowed or quieted
// narration is a quality bug nobody notices until after a long render.
var ErrInvalidVoice = errors.New("invalid voice parameters")

// Emotions the synthesis model understands. Unknown values are rejected,
// not defaulted.
var validEmotions = map[string]bool{
	"neutral": true,
	"clean":   true,
	"happy":   true,
	"sad":     true,
	"angry":   true,
}

const (
	minSpeed  = 0.5
	maxSpeed  = 2.0
	minVolume = 0.5
	maxVolume = 2.0
)

// VoiceParams is the tunable synthesis configuration applied to every
// scene of a run.
type VoiceParams struct {
	Emotion string  `json:"emotion" yaml:"emotion"`
	Speed   float64 `json:"speed" yaml:"speed"`
	Volume  float64 `json:"volume" yaml:"volume"`
}

// DefaultVoice is a neutral voice at normal speed and volume.
func DefaultVoice() VoiceParams {
	return VoiceParams{Emotion: "neutral", Speed: 1.0, Volume: 1.0}
}

// Validate checks the parameters before any network call is made.
func (v VoiceParams) Validate() error {
	if !validEmotions[v.Emotion] {
		return fmt.Errorf("%w: unknown emotion %q (valid: neutral, clean, happy, sad, angry)", ErrInvalidVoice, v.Emotion)
	}
	if v.Speed < minSpeed || v.Speed > maxSpeed {
		return fmt.Errorf("%w: speed %.2f out of range [%.1f, %.1f]", ErrInvalidVoice, v.Speed, minSpeed, maxSpeed)
	}
	if v.Volume < minVolume || v.Volume > maxVolume {
		return fmt.Errorf("%w: volume %.2f out of range [%.1f, %.1f]", ErrInvalidVoice, v.Volume, minVolume, maxVolume)
	}
	return nil
}
