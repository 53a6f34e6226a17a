package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"
	"time"

	"vigil/internal/detection"
	"vigil/internal/event"
	"vigil/internal/stream"
	"vigil/internal/vision"
	"vigil/internal/ws"
)

// Settings are the per-camera runtime toggles. The loop reads an atomically
// swapped snapshot each iteration, so changes apply on the next frame.
type Settings struct {
	Motion        bool
	Detector      bool
	Notifications bool
	Streaming     bool
	Overlay       bool
	ConfThreshold float32
}

// DefaultSettings enables everything except the object detector.
func DefaultSettings() Settings {
	return Settings{
		Motion:        true,
		Detector:      false,
		Notifications: true,
		Streaming:     true,
		Overlay:       true,
		ConfThreshold: 0.5,
	}
}

// ProcessorConfig describes one camera.
type ProcessorConfig struct {
	Name   string
	Source string
	// Output is the RTSP push target for the annotated stream; empty
	// disables streaming.
	Output string
	// MediaMTXAPI, when set, registers the output path before streaming.
	MediaMTXAPI string
	// Width and Height are the canonical working resolution.
	Width, Height int
	FPS           int
	// HardwareEncoder selects NVENC for the outbound stream.
	HardwareEncoder bool
}

// Processor runs one camera: capture, differencing, events, overlay,
// streaming, and ROI editing, all on a single loop.
type Processor struct {
	cfg      ProcessorConfig
	settings atomic.Pointer[Settings]

	engine   *vision.Engine
	events   *event.Engine
	detector detection.Detector
	hub      *ws.Hub

	// onCommit and onDelete persist ROI changes made through the editor.
	onCommit func(roi vision.ROI)
	onDelete func(name string)

	// launchROIs is the set the loop started with, kept so the manager can
	// relaunch the camera; live edits land in the store, which the control
	// surface re-pushes after a restart.
	launchROIs []vision.ROI

	edits chan EditCommand
	stop  chan struct{}
	done  chan struct{}
}

func newProcessor(cfg ProcessorConfig, engine *vision.Engine, events *event.Engine,
	detector detection.Detector, hub *ws.Hub,
	onCommit func(vision.ROI), onDelete func(string)) *Processor {

	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	p := &Processor{
		cfg:      cfg,
		engine:   engine,
		events:   events,
		detector: detector,
		hub:      hub,
		onCommit: onCommit,
		onDelete: onDelete,
		edits:    make(chan EditCommand, 32),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s := DefaultSettings()
	p.settings.Store(&s)
	return p
}

// Settings returns the current snapshot.
func (p *Processor) Settings() Settings {
	return *p.settings.Load()
}

// UpdateSettings swaps in a modified snapshot.
func (p *Processor) UpdateSettings(mutate func(*Settings)) {
	for {
		old := p.settings.Load()
		next := *old
		mutate(&next)
		if p.settings.CompareAndSwap(old, &next) {
			if p.events != nil {
				p.events.SetMuted(p.cfg.Name, !next.Notifications)
			}
			return
		}
	}
}

// Send queues an edit command for the camera loop. Returns false when the
// queue is full; the caller retries rather than blocking the API.
func (p *Processor) Send(cmd EditCommand) bool {
	select {
	case p.edits <- cmd:
		return true
	default:
		return false
	}
}

// run is the camera loop. It owns the ROI set, the edit state, and the
// stream sink; nothing else touches them.
func (p *Processor) run(rois []vision.ROI) {
	defer close(p.done)

	var sink *stream.Sink
	if p.cfg.Output != "" {
		if p.cfg.MediaMTXAPI != "" {
			if err := stream.RegisterPath(p.cfg.MediaMTXAPI, mtxPathFromOutput(p.cfg.Output)); err != nil {
				fmt.Printf("Warning: %v\n", err)
			}
		}
		var err error
		sink, err = stream.Start(stream.Config{
			Output:    p.cfg.Output,
			Width:     p.cfg.Width,
			Height:    p.cfg.Height,
			Framerate: p.cfg.FPS,
			Hardware:  p.cfg.HardwareEncoder,
		})
		if err != nil {
			fmt.Printf("Warning: streaming disabled for %s: %v\n", p.cfg.Name, err)
		}
	}
	if sink != nil {
		defer sink.Close()
	}

	st := editState{}
	for {
		capt, err := startCapture(p.cfg.Source, p.cfg.FPS)
		if err != nil {
			fmt.Printf("Warning: capture start failed for %s: %v\n", p.cfg.Name, err)
			select {
			case <-p.stop:
				return
			case <-time.After(3 * time.Second):
				continue
			}
		}

		fmt.Printf("Camera %s capture started\n", p.cfg.Name)
		stopped := p.processFrames(capt, sink, &rois, &st)
		capt.stop()
		if stopped {
			return
		}

		// Stream dropped; reconnect after a pause.
		fmt.Printf("Warning: camera %s stream ended, reconnecting\n", p.cfg.Name)
		p.engine.ResetBackground()
		select {
		case <-p.stop:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

// processFrames consumes the capture channel until stop or stream end.
// Returns true when the processor is shutting down.
func (p *Processor) processFrames(capt *capture, sink *stream.Sink, rois *[]vision.ROI, st *editState) bool {
	for {
		select {
		case <-p.stop:
			return true
		case jpegFrame, ok := <-capt.frames:
			if !ok {
				return false
			}
			p.handleFrame(jpegFrame, sink, rois, st)
		}
	}
}

func (p *Processor) handleFrame(jpegFrame []byte, sink *stream.Sink, rois *[]vision.ROI, st *editState) {
	img, err := jpeg.Decode(bytes.NewReader(jpegFrame))
	if err != nil {
		fmt.Printf("Warning: frame decode failed for %s: %v\n", p.cfg.Name, err)
		return
	}
	frame := vision.ResizeRGBA(img, p.cfg.Width, p.cfg.Height)

	s := p.settings.Load()

	var motions []vision.Detection
	if s.Motion {
		gray := p.engine.Prepare(frame)
		motions = p.engine.Detect(gray, *rois)
	}

	var objects []detection.Object
	labels := map[string]string{}
	if len(motions) > 0 && s.Detector && p.detector != nil {
		motions, objects, labels = p.corroborate(frame, motions, *rois, s.ConfThreshold)
	}

	p.routeMotion(frame, *rois, motions, labels)

	if p.hub != nil && len(motions) > 0 {
		p.broadcast(motions, objects)
	}

	if s.Overlay {
		p.drawOverlay(frame, *rois, *st, motions, objects)
	}

	if s.Streaming && sink != nil {
		if err := sink.WriteFrame(frame); err != nil && err != stream.ErrUnavailable {
			fmt.Printf("Warning: stream write for %s: %v\n", p.cfg.Name, err)
		}
	}

	p.drainEdits(rois, st)
}

// corroborate runs the object detector over the frame and keeps only
// object-confirmed motion. A detector failure keeps all motion: losing the
// detector must not blind the camera.
func (p *Processor) corroborate(frame *image.RGBA, motions []vision.Detection,
	rois []vision.ROI, confThreshold float32) ([]vision.Detection, []detection.Object, map[string]string) {

	labels := map[string]string{}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 80}); err != nil {
		return motions, nil, labels
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	objects, err := p.detector.Detect(ctx, buf.Bytes(), confThreshold)
	if err != nil {
		fmt.Printf("Warning: detector failed for %s: %v\n", p.cfg.Name, err)
		return motions, nil, labels
	}

	confirmed := detection.Confirm(motions, objects, rois, detection.DefaultIoUThreshold)
	kept := make([]vision.Detection, 0, len(confirmed))
	for _, c := range confirmed {
		kept = append(kept, c.Motion)
		labels[c.Motion.ROIName] = c.Object.Label
	}
	return kept, objects, labels
}

// routeMotion feeds the event engine one verdict per ROI.
func (p *Processor) routeMotion(frame *image.RGBA, rois []vision.ROI,
	motions []vision.Detection, labels map[string]string) {

	active := make(map[string]bool, len(motions))
	for _, m := range motions {
		active[m.ROIName] = true
	}

	for _, r := range rois {
		if active[r.Name] {
			var meta map[string]string
			if label, ok := labels[r.Name]; ok {
				meta = map[string]string{"label": label}
			}
			p.events.HandleMotion(p.cfg.Name, r.Name, frame, meta)
		} else {
			p.events.HandleQuiet(p.cfg.Name, r.Name)
		}
	}
}

func (p *Processor) broadcast(motions []vision.Detection, objects []detection.Object) {
	msg := &ws.MotionMessage{
		Type:      "motion",
		Camera:    p.cfg.Name,
		Timestamp: time.Now(),
	}
	for _, m := range motions {
		msg.Boxes = append(msg.Boxes, ws.BoxFromRect(m.ROIName, m.Box))
	}
	for _, o := range objects {
		box := ws.BoxFromRect("", o.Box)
		box.Label = o.Label
		box.Confidence = o.Confidence
		msg.Boxes = append(msg.Boxes, box)
	}
	p.hub.BroadcastMotion(p.cfg.Name, msg)
}

func (p *Processor) drawOverlay(frame *image.RGBA, rois []vision.ROI, st editState,
	motions []vision.Detection, objects []detection.Object) {

	for _, r := range rois {
		drawPolygon(frame, r.Points, colorROI, true)
		for _, pt := range r.Points {
			drawMarker(frame, pt, colorROI)
		}
	}
	if st.editing {
		drawPolygon(frame, st.points, colorEdit, false)
		for _, pt := range st.points {
			drawMarker(frame, pt, colorEdit)
		}
	}
	for _, m := range motions {
		drawRect(frame, m.Box, colorMotion)
	}
	for _, o := range objects {
		drawRect(frame, o.Box, colorObject)
	}
}

// drainEdits applies every queued edit command.
func (p *Processor) drainEdits(rois *[]vision.ROI, st *editState) {
	for {
		select {
		case cmd := <-p.edits:
			var res editResult
			*st, *rois, res = applyEdit(*st, *rois, cmd, p.cfg.Width, p.cfg.Height)
			if res.resetBackground {
				p.engine.ResetBackground()
			}
			if res.committed != nil && p.onCommit != nil {
				p.onCommit(*res.committed)
			}
			if res.deleted != "" && p.onDelete != nil {
				p.onDelete(res.deleted)
			}
			if res.rejected {
				fmt.Printf("Warning: roi commit rejected for %s: polygon needs 3 points\n", p.cfg.Name)
			}
		default:
			return
		}
	}
}

// mtxPathFromOutput derives the MediaMTX path name from an rtsp output URL
// like rtsp://host:8554/live/cam1. A bare path without a scheme is returned
// unchanged.
func mtxPathFromOutput(output string) string {
	const scheme = "rtsp://"
	s := output
	if len(s) > len(scheme) && s[:len(scheme)] == scheme {
		s = s[len(scheme):]
		// Only a URL carries a host segment to skip.
		for i := 0; i < len(s); i++ {
			if s[i] == '/' {
				return s[i+1:]
			}
		}
	}
	return s
}
