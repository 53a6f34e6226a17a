package vision

import (
	"fmt"
	"image"

	"vigil/internal/geometry"
)

// ROI is the slice of the frame a camera watches for motion.
type ROI struct {
	Name   string
	Points geometry.Polygon
}

// Detection is one qualifying motion region found in a single frame.
type Detection struct {
	ROIName string
	Box     image.Rectangle
	Area    int
}

// Config holds the tunables of the differencing stage.
type Config struct {
	// DiffThreshold is the binary cutoff applied to the absolute
	// difference image.
	DiffThreshold uint8
	// MinContourArea rejects contours enclosing fewer pixels.
	MinContourArea int
	// Blur smooths the grayscale frame before differencing.
	Blur bool
	// DilateRadius and DilateIterations grow thresholded blobs so
	// fragmented motion merges into one contour.
	DilateRadius     int
	DilateIterations int
}

// DefaultConfig mirrors the tuning the system shipped with.
func DefaultConfig() Config {
	return Config{
		DiffThreshold:    50,
		MinContourArea:   2000,
		Blur:             true,
		DilateRadius:     2,
		DilateIterations: 2,
	}
}

// Engine performs background-difference motion detection for one camera.
// It owns the camera's background reference; callers feed it grayscale
// frames and the ROIs to evaluate. Not safe for concurrent use; each camera
// loop owns its engine.
type Engine struct {
	cfg        Config
	backend    Backend
	background *image.Gray

	// maskCache keeps one rasterized polygon mask per ROI name so the
	// fill only reruns when geometry changes.
	maskCache map[string]*roiMask
}

type roiMask struct {
	points geometry.Polygon
	bounds image.Rectangle
	mask   []bool
}

// NewEngine creates a differencing engine with the given backend. A nil
// backend selects the software implementation.
func NewEngine(cfg Config, backend Backend) *Engine {
	if backend == nil {
		backend = NewSoftwareBackend()
	}
	return &Engine{
		cfg:       cfg,
		backend:   backend,
		maskCache: make(map[string]*roiMask),
	}
}

// SetBackground replaces the background reference wholesale.
func (e *Engine) SetBackground(gray *image.Gray) {
	e.background = gray
}

// ResetBackground clears the reference so the next frame reseeds it.
// Called whenever ROI geometry changes.
func (e *Engine) ResetBackground() {
	e.background = nil
	e.maskCache = make(map[string]*roiMask)
}

// HasBackground reports whether a background reference is set.
func (e *Engine) HasBackground() bool {
	return e.background != nil
}

// Prepare converts a frame to the grayscale working image, applying the
// configured blur.
func (e *Engine) Prepare(frame image.Image) *image.Gray {
	gray := ToGray(frame)
	if e.cfg.Blur {
		gray = Blur(gray)
	}
	return gray
}

// Detect runs masked background differencing for every ROI and returns the
// qualifying motion boxes. Guards, in order: a missing background adopts the
// current frame and yields nothing (bootstrap); a dimension mismatch
// resamples the background to the current size and yields nothing for this
// frame. Neither case is an error; the capture loop must keep going.
func (e *Engine) Detect(gray *image.Gray, rois []ROI) []Detection {
	if gray == nil {
		return nil
	}
	if e.background == nil {
		e.SetBackground(gray)
		return nil
	}
	if !e.background.Bounds().Eq(gray.Bounds()) {
		fmt.Printf("Frame size mismatch: current=%v, background=%v; resizing background\n",
			gray.Bounds(), e.background.Bounds())
		e.background = ResizeGray(e.background, gray.Bounds().Dx(), gray.Bounds().Dy())
		return nil
	}

	var detections []Detection
	for _, roi := range rois {
		if len(roi.Points) < 3 {
			continue
		}
		detections = append(detections, e.detectROI(gray, roi)...)
	}
	return detections
}

// detectROI diffs one polygon-masked region. The mask is applied to both the
// current frame and the background so the polygon boundary itself never
// registers as motion.
func (e *Engine) detectROI(gray *image.Gray, roi ROI) []Detection {
	mask := e.maskFor(roi, gray.Bounds())

	cur := applyMask(gray, mask)
	bg := applyMask(e.background, mask)

	diff := image.NewGray(gray.Bounds())
	e.backend.AbsDiff(bg, cur, diff)
	e.backend.Threshold(diff, diff, e.cfg.DiffThreshold)
	e.backend.Dilate(diff, diff, e.cfg.DilateRadius, e.cfg.DilateIterations)

	var detections []Detection
	for _, c := range FindContours(diff) {
		if c.Area < e.cfg.MinContourArea {
			continue
		}
		detections = append(detections, Detection{
			ROIName: roi.Name,
			Box:     c.Box,
			Area:    c.Area,
		})
	}
	return detections
}

// maskFor returns the cached rasterized mask for a ROI, rebuilding it when
// the polygon or frame bounds changed.
func (e *Engine) maskFor(roi ROI, bounds image.Rectangle) *roiMask {
	cached, ok := e.maskCache[roi.Name]
	if ok && cached.bounds.Eq(bounds) && polygonsEqual(cached.points, roi.Points) {
		return cached
	}
	m := &roiMask{
		points: append(geometry.Polygon(nil), roi.Points...),
		bounds: bounds,
		mask:   rasterizePolygon(roi.Points, bounds),
	}
	e.maskCache[roi.Name] = m
	return m
}

func polygonsEqual(a, b geometry.Polygon) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rasterizePolygon produces a per-pixel inside/outside map for the polygon
// within bounds. Only the polygon's bounding box is scanned.
func rasterizePolygon(poly geometry.Polygon, bounds image.Rectangle) []bool {
	w, h := bounds.Dx(), bounds.Dy()
	mask := make([]bool, w*h)

	minX, minY, maxX, maxY := geometry.BoundingBox(poly)
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX >= w {
		maxX = w - 1
	}
	if maxY >= h {
		maxY = h - 1
	}

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if geometry.PointInPolygon(geometry.Point{X: x, Y: y}, poly) {
				mask[y*w+x] = true
			}
		}
	}
	return mask
}

// applyMask zeroes every pixel outside the ROI.
func applyMask(src *image.Gray, m *roiMask) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride:]
		drow := out.Pix[y*out.Stride:]
		mrow := m.mask[y*w:]
		for x := 0; x < w; x++ {
			if mrow[x] {
				drow[x] = srow[x]
			}
		}
	}
	return out
}
