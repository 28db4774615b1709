package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// transcodeToWAV converts an arbitrary audio/video container (mp3, mp4, ogg,
// ...) to a temporary PCM WAV file via ffmpeg, keeping the source sample rate
// and channel layout so downmix and resampling stay in this package. The
// caller must invoke cleanup regardless of error.
func transcodeToWAV(ctx context.Context, ffmpegPath, src string) (path string, cleanup func(), err error) {
	cleanup = func() {}

	dir, err := os.MkdirTemp("", "toxiscan-transcode-*")
	if err != nil {
		return "", cleanup, fmt.Errorf("audio: create transcode dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	out := filepath.Join(dir, "decoded.wav")
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		out,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", cleanup, &DecodeError{
			Source: src,
			Err:    fmt.Errorf("ffmpeg: %v: %s", err, truncateOutput(output)),
		}
	}
	return out, cleanup, nil
}

// truncateOutput bounds ffmpeg stderr noise in error messages.
func truncateOutput(b []byte) string {
	const limit = 512
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}
