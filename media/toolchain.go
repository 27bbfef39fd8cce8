// Package media wraps the external ffmpeg/ffprobe tools behind the three
// operations the pipeline needs: conforming a raw clip to an exact
// duration, muxing it with narration audio, and the final lossless concat.
// Every operation uses one fixed encoding profile; a non-zero exit from
// the tool is a hard failure for that operation.
package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ryanfish1/mindvideo/config"
)

var (
	// ErrConform reports a failed trim/re-encode, including a source clip
	// shorter than the synthesized audio when looping is disabled.
	ErrConform = errors.New("conform failed")
	// ErrMux reports a failed video+audio combine.
	ErrMux = errors.New("mux failed")
	// ErrConcat reports a failed final join.
	ErrConcat = errors.New("concat failed")
)

// Toolchain is the ffmpeg/ffprobe wrapper configured with the canonical
// encoding profile.
type Toolchain struct {
	FFmpeg  string
	FFprobe string

	profile   config.EncodingProfile
	loopShort bool
	exec      Executor
}

// NewToolchain returns a Toolchain using the ffmpeg/ffprobe binaries on
// PATH. loopShort selects the policy for source clips shorter than the
// target duration: loop the clip (true) or fail the conform (false).
func NewToolchain(profile config.EncodingProfile, loopShort bool) *Toolchain {
	return &Toolchain{
		FFmpeg:    "ffmpeg",
		FFprobe:   "ffprobe",
		profile:   profile,
		loopShort: loopShort,
		exec:      execRunner{},
	}
}

// Duration measures a media file's container duration in seconds with
// ffprobe. Measured durations, not requested ones, drive all trimming.
func (t *Toolchain) Duration(ctx context.Context, path string) (float64, error) {
	out, err := t.exec.Output(ctx, t.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration for %s: %w", path, err)
	}
	return dur, nil
}

// ApplyAudioFilter re-encodes an audio file through an ffmpeg -af chain
// (atempo/volume adjustments after synthesis).
func (t *Toolchain) ApplyAudioFilter(ctx context.Context, inPath, outPath, filter string) error {
	if err := t.exec.Run(ctx, t.FFmpeg, "-y", "-i", inPath, "-af", filter, outPath); err != nil {
		return fmt.Errorf("ffmpeg audio filter %q: %w", filter, err)
	}
	return nil
}
