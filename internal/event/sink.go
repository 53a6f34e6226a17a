package event

import (
	"fmt"
	"image"
	"io"
	"os/exec"
)

// fileSink pipes raw frames into an ffmpeg subprocess writing an MJPEG AVI
// temp file. The first frame fixes the dimensions.
type fileSink struct {
	path  string
	cmd   *exec.Cmd
	stdin io.WriteCloser
	w, h  int
}

// NewFileSink is the production SinkFactory: one ffmpeg process per
// recording session.
func NewFileSink(camera, roi, path string) (VideoSink, error) {
	return &fileSink{path: path}, nil
}

func (s *fileSink) WriteFrame(frame *image.RGBA) error {
	b := frame.Bounds()
	if s.cmd == nil {
		if err := s.start(b.Dx(), b.Dy()); err != nil {
			return err
		}
	}
	if b.Dx() != s.w || b.Dy() != s.h {
		return fmt.Errorf("frame size %dx%d does not match recording %dx%d",
			b.Dx(), b.Dy(), s.w, s.h)
	}

	_, err := s.stdin.Write(rgbaToBGR(frame))
	if err != nil {
		return fmt.Errorf("writing frame to recorder: %w", err)
	}
	return nil
}

func (s *fileSink) start(w, h int) error {
	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-framerate", "15",
		"-i", "pipe:0",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-y", s.path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting recorder ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.w, s.h = w, h
	return nil
}

func (s *fileSink) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.stdin.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	return err
}

// rgbaToBGR repacks an RGBA frame into the bgr24 layout ffmpeg expects.
func rgbaToBGR(frame *image.RGBA) []byte {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		src := frame.Pix[y*frame.Stride:]
		dst := out[y*w*3:]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4+2]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4]
		}
	}
	return out
}
