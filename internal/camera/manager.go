package camera

import (
	"fmt"
	"sync"
	"time"

	"vigil/internal/detection"
	"vigil/internal/event"
	"vigil/internal/vision"
	"vigil/internal/ws"
)

// stopGrace bounds how long Stop waits for a camera loop to wind down
// before giving up on it.
const stopGrace = 5 * time.Second

// Manager owns the running camera processors.
type Manager struct {
	mu    sync.RWMutex
	procs map[string]*Processor

	visionCfg vision.Config
	events    *event.Engine
	detector  detection.Detector
	hub       *ws.Hub
}

// NewManager creates a manager sharing one event engine, detector, and hub
// across all cameras. detector and hub may be nil.
func NewManager(visionCfg vision.Config, events *event.Engine, detector detection.Detector, hub *ws.Hub) *Manager {
	return &Manager{
		procs:     make(map[string]*Processor),
		visionCfg: visionCfg,
		events:    events,
		detector:  detector,
		hub:       hub,
	}
}

// Start launches a camera. onCommit and onDelete persist ROI edits made
// through the camera's editor; either may be nil.
func (m *Manager) Start(cfg ProcessorConfig, rois []vision.ROI,
	onCommit func(vision.ROI), onDelete func(string)) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.procs[cfg.Name]; running {
		return fmt.Errorf("camera %s is already running", cfg.Name)
	}

	engine := vision.NewEngine(m.visionCfg, nil)
	p := newProcessor(cfg, engine, m.events, m.detector, m.hub, onCommit, onDelete)
	p.launchROIs = append([]vision.ROI(nil), rois...)
	m.procs[cfg.Name] = p

	go p.run(append([]vision.ROI(nil), rois...))
	fmt.Printf("Camera %s started\n", cfg.Name)
	return nil
}

// Stop shuts one camera down, waiting up to the grace period.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	p, ok := m.procs[name]
	if ok {
		delete(m.procs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("camera %s is not running", name)
	}

	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		fmt.Printf("Warning: camera %s did not stop within %v\n", name, stopGrace)
	}
	fmt.Printf("Camera %s stopped\n", name)
	return nil
}

// StopAll stops every running camera.
func (m *Manager) StopAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.procs))
	for name := range m.procs {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		m.Stop(name)
	}
}

// Restart relaunches a camera with a modified config, carrying over its
// settings snapshot and persistence callbacks. Used for resolution changes,
// which need a fresh capture pipeline and stream sink.
func (m *Manager) Restart(name string, mutate func(*ProcessorConfig)) error {
	m.mu.RLock()
	p, ok := m.procs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("camera %s is not running", name)
	}

	cfg := p.cfg
	mutate(&cfg)
	settings := p.Settings()
	rois := append([]vision.ROI(nil), p.launchROIs...)
	onCommit, onDelete := p.onCommit, p.onDelete

	if err := m.Stop(name); err != nil {
		return err
	}
	if err := m.Start(cfg, rois, onCommit, onDelete); err != nil {
		return err
	}
	return m.UpdateSettings(name, func(s *Settings) { *s = settings })
}

// Running reports whether a camera is active.
func (m *Manager) Running(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.procs[name]
	return ok
}

// CameraStatus is one camera's runtime state.
type CameraStatus struct {
	Name     string   `json:"name"`
	Running  bool     `json:"running"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Settings Settings `json:"settings"`
}

// Status reports every running camera.
func (m *Manager) Status() []CameraStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]CameraStatus, 0, len(m.procs))
	for name, p := range m.procs {
		statuses = append(statuses, CameraStatus{
			Name:     name,
			Running:  true,
			Width:    p.cfg.Width,
			Height:   p.cfg.Height,
			Settings: p.Settings(),
		})
	}
	return statuses
}

// Send queues an edit command on one camera.
func (m *Manager) Send(name string, cmd EditCommand) error {
	m.mu.RLock()
	p, ok := m.procs[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("camera %s is not running", name)
	}
	if !p.Send(cmd) {
		return fmt.Errorf("camera %s edit queue is full", name)
	}
	return nil
}

// SetROIs replaces a camera's working ROI set, typically after an API
// change landed in the store.
func (m *Manager) SetROIs(name string, rois []vision.ROI) error {
	return m.Send(name, EditCommand{Op: OpSetROIs, ROIs: rois})
}

// UpdateSettings mutates one camera's settings snapshot.
func (m *Manager) UpdateSettings(name string, mutate func(*Settings)) error {
	m.mu.RLock()
	p, ok := m.procs[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("camera %s is not running", name)
	}
	p.UpdateSettings(mutate)
	return nil
}

// UpdateAllSettings applies the mutation to every running camera.
func (m *Manager) UpdateAllSettings(mutate func(*Settings)) {
	m.mu.RLock()
	procs := make([]*Processor, 0, len(m.procs))
	for _, p := range m.procs {
		procs = append(procs, p)
	}
	m.mu.RUnlock()

	for _, p := range procs {
		p.UpdateSettings(mutate)
	}
}
