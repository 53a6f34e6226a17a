package event

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds the timing windows and storage locations of the event
// engine. The zero value is unusable; start from DefaultConfig.
type Config struct {
	// ConsistencyWindow is how long motion must persist in an ROI before a
	// recording session opens. A single quiet frame resets the clock.
	ConsistencyWindow time.Duration
	// ScreenshotCooldown is the minimum spacing between screenshots for
	// the same (camera, roi).
	ScreenshotCooldown time.Duration
	// NotificationCooldown is the minimum spacing between notifications
	// for the same (camera, roi).
	NotificationCooldown time.Duration
	// MinRecordAge delays the first notification until the recording has
	// accumulated enough footage to be worth looking at.
	MinRecordAge time.Duration
	// QuiescenceWindow is how long an ROI must stay quiet before its
	// recording session finalizes.
	QuiescenceWindow time.Duration
	// SweepInterval is the cadence of the quiescence sweeper.
	SweepInterval time.Duration

	TempDir       string
	RecordingDir  string
	ScreenshotDir string
}

// DefaultConfig returns the tuning the system ships with.
func DefaultConfig() Config {
	return Config{
		ConsistencyWindow:    1 * time.Second,
		ScreenshotCooldown:   5 * time.Second,
		NotificationCooldown: 30 * time.Second,
		MinRecordAge:         2 * time.Second,
		QuiescenceWindow:     5 * time.Second,
		SweepInterval:        1 * time.Second,
		TempDir:              "recordings/tmp",
		RecordingDir:         "recordings",
		ScreenshotDir:        "screenshots",
	}
}

// Event is one notification-worthy occurrence.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"event"`
	Camera     string            `json:"camera_name"`
	ROI        string            `json:"roi_name"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Screenshot []byte            `json:"-"`
}

// Notifier delivers an event to an external channel. Implementations own
// their retry policy; the engine only logs delivery failures.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// VideoSink receives the frames of one recording session.
type VideoSink interface {
	WriteFrame(frame *image.RGBA) error
	Close() error
}

// SinkFactory opens a sink writing to path for a new session.
type SinkFactory func(camera, roi, path string) (VideoSink, error)

// Archiver uploads a finalized artifact to long-term storage.
type Archiver interface {
	Upload(ctx context.Context, localPath, objectName string) error
}

// Recording is one open session for a (camera, roi) key.
type Recording struct {
	ID         string
	Camera     string
	ROI        string
	StartTime  time.Time
	LastMotion time.Time
	TempPath   string
	Notified   bool

	// mu serializes sink creation, writes, and finalization for this one
	// session, so a slow writer stalls only its own (camera, roi).
	mu        sync.Mutex
	sink      VideoSink
	finalized bool
}

// Engine turns per-frame motion verdicts into recording sessions,
// screenshots, and notifications. One engine serves all cameras. The engine
// mutex covers bookkeeping only; sink, disk, and network I/O run outside it
// under each recording's own lock.
type Engine struct {
	cfg         Config
	sinkFactory SinkFactory
	notifiers   []Notifier
	archiver    Archiver

	// transcode runs after a session's temp file moves to final storage.
	// Swapped in tests; defaults to the ffmpeg transcoder.
	transcode func(tempPath, finalPath string) error

	mu             sync.Mutex
	motionStart    map[string]time.Time
	lastScreenshot map[string]time.Time
	lastNotify     map[string]time.Time
	recordings     map[string]*Recording
	muted          map[string]bool
}

// NewEngine creates an event engine. A nil sinkFactory selects the ffmpeg
// file sink; archiver may be nil.
func NewEngine(cfg Config, sinkFactory SinkFactory, notifiers []Notifier, archiver Archiver) *Engine {
	if sinkFactory == nil {
		sinkFactory = NewFileSink
	}
	return &Engine{
		cfg:            cfg,
		sinkFactory:    sinkFactory,
		notifiers:      notifiers,
		archiver:       archiver,
		transcode:      Transcode,
		motionStart:    make(map[string]time.Time),
		lastScreenshot: make(map[string]time.Time),
		lastNotify:     make(map[string]time.Time),
		recordings:     make(map[string]*Recording),
		muted:          make(map[string]bool),
	}
}

// SetMuted suppresses notifications for one camera; recordings and
// screenshots continue.
func (e *Engine) SetMuted(camera string, muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if muted {
		e.muted[camera] = true
	} else {
		delete(e.muted, camera)
	}
}

func sessionKey(camera, roi string) string {
	return camera + "_" + roi
}

// HandleMotion processes one frame with qualifying motion in (camera, roi).
// metadata rides along on any notification the frame triggers.
func (e *Engine) HandleMotion(camera, roi string, frame *image.RGBA, metadata map[string]string) {
	now := time.Now()
	key := sessionKey(camera, roi)

	e.mu.Lock()
	start, ok := e.motionStart[key]
	if !ok {
		e.motionStart[key] = now
		e.mu.Unlock()
		return
	}

	rec := e.recordings[key]
	opened := false
	if rec == nil {
		if now.Sub(start) < e.cfg.ConsistencyWindow {
			e.mu.Unlock()
			return
		}
		rec = &Recording{
			ID:         uuid.New().String(),
			Camera:     camera,
			ROI:        roi,
			StartTime:  now,
			LastMotion: now,
		}
		e.recordings[key] = rec
		opened = true
	}
	rec.LastMotion = now

	takeScreenshot := frame != nil && now.Sub(e.lastScreenshot[key]) >= e.cfg.ScreenshotCooldown
	if takeScreenshot {
		e.lastScreenshot[key] = now
	}

	notify := !e.muted[camera] &&
		now.Sub(rec.StartTime) >= e.cfg.MinRecordAge &&
		now.Sub(e.lastNotify[key]) >= e.cfg.NotificationCooldown
	if notify {
		e.lastNotify[key] = now
		rec.Notified = true
	}
	e.mu.Unlock()

	rec.mu.Lock()
	if opened {
		if err := e.openSink(rec); err != nil {
			fmt.Printf("Warning: failed to open recording for %s: %v\n", key, err)
			rec.mu.Unlock()
			e.mu.Lock()
			if e.recordings[key] == rec {
				delete(e.recordings, key)
			}
			e.mu.Unlock()
			return
		}
	}
	if frame != nil && rec.sink != nil && !rec.finalized {
		if err := rec.sink.WriteFrame(frame); err != nil {
			fmt.Printf("Warning: recording write failed for %s: %v\n", key, err)
		}
	}
	rec.mu.Unlock()

	var screenshot []byte
	if takeScreenshot {
		screenshot = e.saveScreenshot(key, frame, now)
	}

	if notify {
		ev := Event{
			ID:         uuid.New().String(),
			Type:       "motion",
			Camera:     camera,
			ROI:        roi,
			Timestamp:  now,
			Metadata:   metadata,
			Screenshot: screenshot,
		}
		go e.dispatch(ev)
	}
}

// HandleQuiet processes one frame with no qualifying motion in (camera,
// roi). Quiet resets a pending consistency window but leaves an open
// recording to the quiescence sweeper.
func (e *Engine) HandleQuiet(camera, roi string) {
	key := sessionKey(camera, roi)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, recording := e.recordings[key]; !recording {
		delete(e.motionStart, key)
	}
}

// Sweep finalizes every session quiet for longer than the quiescence
// window. Called on a ticker; safe to call directly in tests.
func (e *Engine) Sweep() {
	now := time.Now()

	e.mu.Lock()
	var done []*Recording
	for key, rec := range e.recordings {
		if now.Sub(rec.LastMotion) > e.cfg.QuiescenceWindow {
			delete(e.recordings, key)
			delete(e.motionStart, key)
			done = append(done, rec)
		}
	}
	e.mu.Unlock()

	for _, rec := range done {
		e.finalize(rec)
	}
}

// StartSweeper runs the quiescence sweep until ctx is cancelled, then
// finalizes every remaining session.
func (e *Engine) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.CloseAll()
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// CloseAll finalizes every open session regardless of quiescence.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	var done []*Recording
	for key, rec := range e.recordings {
		delete(e.recordings, key)
		delete(e.motionStart, key)
		done = append(done, rec)
	}
	e.mu.Unlock()

	for _, rec := range done {
		e.finalize(rec)
	}
}

// ActiveSessions reports the number of open recording sessions.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recordings)
}

// openSink creates the temp file sink for a new recording. Caller holds the
// recording lock, not the engine lock.
func (e *Engine) openSink(rec *Recording) error {
	if err := os.MkdirAll(e.cfg.TempDir, 0o755); err != nil {
		return err
	}
	rec.TempPath = filepath.Join(e.cfg.TempDir,
		fmt.Sprintf("%s_%s_%s.avi", rec.Camera, rec.ROI, rec.ID))

	sink, err := e.sinkFactory(rec.Camera, rec.ROI, rec.TempPath)
	if err != nil {
		return err
	}
	rec.sink = sink
	return nil
}

// finalize closes the sink, moves the raw file into final storage, and hands
// it to the asynchronous transcoder. The move happens before any transcoding,
// so a failed transcode leaves the raw recording in place.
func (e *Engine) finalize(rec *Recording) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.finalized {
		return
	}
	rec.finalized = true

	if rec.sink == nil {
		return
	}
	if err := rec.sink.Close(); err != nil {
		fmt.Printf("Warning: closing recording sink for %s_%s: %v\n", rec.Camera, rec.ROI, err)
	}

	if _, err := os.Stat(rec.TempPath); err != nil {
		// In-memory sinks write nothing; there is no file to move.
		return
	}

	if err := os.MkdirAll(e.cfg.RecordingDir, 0o755); err != nil {
		fmt.Printf("Warning: creating recording dir: %v\n", err)
		return
	}
	base := fmt.Sprintf("%s_%s_%s", rec.Camera, rec.ROI, rec.StartTime.Format("20060102_150405"))
	rawPath := filepath.Join(e.cfg.RecordingDir, base+".avi")
	finalPath := filepath.Join(e.cfg.RecordingDir, base+".mp4")

	if err := os.Rename(rec.TempPath, rawPath); err != nil {
		fmt.Printf("Warning: moving recording %s: %v\n", rec.TempPath, err)
		return
	}

	go func() {
		if err := e.transcode(rawPath, finalPath); err != nil {
			fmt.Printf("Warning: transcode of %s failed, keeping raw file: %v\n", rawPath, err)
			return
		}
		os.Remove(rawPath)
		if e.archiver != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := e.archiver.Upload(ctx, finalPath, filepath.Base(finalPath)); err != nil {
				fmt.Printf("Warning: archive upload of %s failed: %v\n", finalPath, err)
			}
		}
	}()
}

// saveScreenshot encodes the frame to JPEG, stores it, and returns the
// bytes for notification payloads. Runs outside the engine lock.
func (e *Engine) saveScreenshot(key string, frame *image.RGBA, now time.Time) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 85}); err != nil {
		fmt.Printf("Warning: screenshot encode failed for %s: %v\n", key, err)
		return nil
	}

	if e.cfg.ScreenshotDir != "" {
		if err := os.MkdirAll(e.cfg.ScreenshotDir, 0o755); err == nil {
			path := filepath.Join(e.cfg.ScreenshotDir,
				fmt.Sprintf("%s_%s.jpg", key, now.Format("20060102_150405")))
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				fmt.Printf("Warning: screenshot write failed for %s: %v\n", key, err)
			}
		}
	}
	return buf.Bytes()
}

// dispatch fans the event out to every notifier. Runs off the capture path.
func (e *Engine) dispatch(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			fmt.Printf("Warning: notification for %s/%s failed: %v\n", ev.Camera, ev.ROI, err)
		}
	}
}
