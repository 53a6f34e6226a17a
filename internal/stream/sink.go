package stream

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync/atomic"
	"time"
)

// ErrUnavailable is returned while the sink is down after a failed restart.
// Callers log it and keep their loop running; the sink retries the spawn on
// a later write once the throttle window passes.
var ErrUnavailable = errors.New("stream sink unavailable")

// respawnRetryInterval spaces out spawn attempts while the sink is down.
const respawnRetryInterval = 5 * time.Second

// Config describes one outbound RTSP push.
type Config struct {
	Output    string
	Width     int
	Height    int
	Framerate int
	// Hardware selects the NVENC encoder variant.
	Hardware bool
}

// process is the subprocess seam; tests substitute a fake.
type process interface {
	alive() bool
	write(p []byte) error
	close() error
}

// Sink pushes annotated frames to an RTSP endpoint through an ffmpeg
// subprocess. Writes are synchronous in capture order; a dead process is
// restarted transparently, with the current frame written to the fresh
// process. Not safe for concurrent use; one sink per camera loop.
type Sink struct {
	cfg   Config
	spawn func(Config) (process, error)
	now   func() time.Time

	proc      process
	down      bool
	nextRetry time.Time
}

// Start launches the encoder and returns the sink. A spawn failure here is
// fatal; later deaths are absorbed by WriteFrame.
func Start(cfg Config) (*Sink, error) {
	return start(cfg, spawnFFmpeg)
}

func start(cfg Config, spawn func(Config) (process, error)) (*Sink, error) {
	if cfg.Framerate <= 0 {
		cfg.Framerate = 25
	}
	proc, err := spawn(cfg)
	if err != nil {
		return nil, fmt.Errorf("starting stream encoder: %w", err)
	}
	return &Sink{cfg: cfg, spawn: spawn, now: time.Now, proc: proc}, nil
}

// WriteFrame sends one frame to the encoder. A dead process is replaced and
// the frame goes to the replacement; a broken pipe gets one restart+retry.
// After a failed restart the sink fails fast with ErrUnavailable, retrying
// the spawn at most once per respawnRetryInterval.
func (s *Sink) WriteFrame(frame *image.RGBA) error {
	if s.down {
		if s.now().Before(s.nextRetry) {
			return ErrUnavailable
		}
		if err := s.restart(); err != nil {
			return err
		}
	} else if !s.proc.alive() {
		if err := s.restart(); err != nil {
			return err
		}
	}

	data := rgbaToBGR(frame)
	if err := s.proc.write(data); err != nil {
		fmt.Printf("Warning: stream write failed (%v), restarting encoder\n", err)
		if rerr := s.restart(); rerr != nil {
			return rerr
		}
		if err := s.proc.write(data); err != nil {
			return fmt.Errorf("stream write after restart: %w", err)
		}
	}
	return nil
}

func (s *Sink) restart() error {
	s.proc.close()
	proc, err := s.spawn(s.cfg)
	if err != nil {
		s.down = true
		s.nextRetry = s.now().Add(respawnRetryInterval)
		fmt.Printf("Warning: stream encoder restart failed: %v\n", err)
		return ErrUnavailable
	}
	s.proc = proc
	s.down = false
	return nil
}

// Unavailable reports whether the sink is down pending a respawn retry.
func (s *Sink) Unavailable() bool {
	return s.down
}

// Close shuts the encoder down.
func (s *Sink) Close() error {
	return s.proc.close()
}

// ffmpegProcess wraps one encoder subprocess. A monitor goroutine marks it
// dead the moment ffmpeg exits, so liveness checks are cheap.
type ffmpegProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	dead  atomic.Bool
}

func spawnFFmpeg(cfg Config) (process, error) {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", fmt.Sprintf("%d", cfg.Framerate),
		"-i", "-",
	}
	if cfg.Hardware {
		args = append(args,
			"-c:v", "h264_nvenc",
			"-preset", "fast",
			"-gpu", "0",
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
		)
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-f", "rtsp", cfg.Output,
	)

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &ffmpegProcess{cmd: cmd, stdin: stdin}
	go func() {
		cmd.Wait()
		p.dead.Store(true)
	}()
	return p, nil
}

func (p *ffmpegProcess) alive() bool {
	return !p.dead.Load()
}

func (p *ffmpegProcess) write(data []byte) error {
	_, err := p.stdin.Write(data)
	return err
}

func (p *ffmpegProcess) close() error {
	p.stdin.Close()
	if p.dead.Load() {
		return nil
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return nil
}

// rgbaToBGR repacks a frame into the bgr24 layout the encoder reads.
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
