package event

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// transcodeTimeout bounds a single file transcode; a wedged ffmpeg is
// killed rather than left holding the recording.
const transcodeTimeout = 60 * time.Second

// Transcode converts a finalized temp recording to browser-playable H.264
// (baseline profile, yuv420p, faststart).
func Transcode(tempPath, finalPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", tempPath,
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", finalPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("transcode timed out after %v", transcodeTimeout)
		}
		return fmt.Errorf("transcode failed: %v: %s", err, out)
	}
	return nil
}
