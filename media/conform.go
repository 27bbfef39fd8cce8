package media

import (
	"context"
	"fmt"
	"log"
)

// Conform trims a raw clip to exactly target seconds, scales and pads it
// to the profile resolution, re-encodes it at the profile frame rate and
// codec, and strips the source audio. The scene's audio comes exclusively
// from synthesis, so the conformed file is always silent.
//
// When the source is shorter than the target the default is to fail: a
// looped clip silently degrades the footage, and the caller may have a
// better candidate. With loopShort enabled the clip is repeated with
// -stream_loop instead, the way short asset clips have always been
// stretched.
func (t *Toolchain) Conform(ctx context.Context, rawPath string, target float64, outPath string) error {
	srcDur, err := t.Duration(ctx, rawPath)
	if err != nil {
		return fmt.Errorf("%w: probe source: %v", ErrConform, err)
	}
	// A zero probe result means a corrupt or empty download; looping math
	// would divide by it.
	if srcDur <= 0 {
		return fmt.Errorf("%w: source %s has no measurable duration", ErrConform, rawPath)
	}

	args := []string{"-y"}
	if srcDur+t.profile.FrameInterval() < target {
		if !t.loopShort {
			return fmt.Errorf("%w: source %.2fs shorter than audio %.2fs", ErrConform, srcDur, target)
		}
		loops := int(target/srcDur) + 1
		log.Printf("[conform] source %.2fs < target %.2fs, looping %dx", srcDur, target, loops)
		args = append(args, "-stream_loop", fmt.Sprintf("%d", loops))
	}

	p := t.profile
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		p.Width, p.Height, p.Width, p.Height,
	)
	args = append(args,
		"-i", rawPath,
		"-t", fmt.Sprintf("%.3f", target),
		"-vf", scale,
		"-c:v", p.VideoCodec,
		"-preset", p.Preset,
		"-crf", fmt.Sprintf("%d", p.CRF),
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", p.PixelFormat,
		"-an",
		outPath,
	)

	if err := t.exec.Run(ctx, t.FFmpeg, args...); err != nil {
		return fmt.Errorf("%w: ffmpeg: %v", ErrConform, err)
	}
	return nil
}
