package camera

import (
	"fmt"
	"io"
	"os/exec"
)

// capture wraps one ffmpeg decode subprocess turning an RTSP stream into a
// channel of JPEG frames.
type capture struct {
	cmd    *exec.Cmd
	frames chan []byte
}

// startCapture launches ffmpeg reading the source and re-emitting MJPEG on
// stdout. Frames arrive on the returned channel; the channel closes when
// the stream ends or the process dies.
func startCapture(source string, fps int) (*capture, error) {
	if fps <= 0 {
		fps = 5
	}
	cmd := exec.Command("ffmpeg",
		"-rtsp_transport", "tcp",
		"-i", source,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", fmt.Sprintf("%d", fps),
		"-q:v", "5",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting capture ffmpeg: %w", err)
	}

	c := &capture{
		cmd:    cmd,
		frames: make(chan []byte, 10),
	}

	go func() {
		defer close(c.frames)
		defer stdout.Close()

		buffer := make([]byte, 0, 1024*1024)
		chunk := make([]byte, 8192)
		for {
			n, err := stdout.Read(chunk)
			if err != nil {
				if err != io.EOF {
					fmt.Printf("Warning: capture read failed: %v\n", err)
				}
				return
			}
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buffer)
				if frame == nil {
					break
				}
				select {
				case c.frames <- frame:
				default:
					// Drop the frame when the consumer lags.
				}
			}
		}
	}()

	return c, nil
}

// stop kills the subprocess; the reader goroutine drains out on EOF.
func (c *capture) stop() {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmd.Wait()
}

// extractJPEGFrame pulls one complete JPEG (FFD8 .. FFD9) out of the
// buffer, consuming the bytes it used.
func extractJPEGFrame(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, buf[startIdx:endIdx])
	*buffer = buf[endIdx:]
	return frame
}
