package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mux combines a conformed silent video with its narration audio. The
// video stream is copied as-is (already on the canonical profile) and the
// audio is encoded to the profile's single audio codec/bitrate. -shortest
// stops at the shorter stream: the conformer should have made the two
// equal, this is the safety net against drift.
func (t *Toolchain) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	err := t.exec.Run(ctx, t.FFmpeg, "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", t.profile.AudioCodec,
		"-b:a", t.profile.AudioBitrate,
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg: %v", ErrMux, err)
	}
	return nil
}

// Concat joins scene artifacts in the given order into one file using the
// concat demuxer with stream copy. No re-encode happens here; the join is
// only valid because every part shares the canonical encoding profile.
func (t *Toolchain) Concat(ctx context.Context, parts []string, outPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: no parts to concatenate", ErrConcat)
	}

	var lines []string
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		lines = append(lines, fmt.Sprintf("file '%s'", abs))
	}
	listFile := filepath.Join(filepath.Dir(outPath), "concat_list.txt")
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("%w: write concat list: %v", ErrConcat, err)
	}
	defer os.Remove(listFile)

	err := t.exec.Run(ctx, t.FFmpeg, "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg: %v", ErrConcat, err)
	}
	return nil
}
