package detection

import (
	"image"

	"vigil/internal/geometry"
	"vigil/internal/vision"
)

// DefaultIoUThreshold is the minimum intersection-over-union for a motion
// box and an object box to count as the same region.
const DefaultIoUThreshold = 0.3

// BoxesOverlap reports whether two boxes overlap with an IoU of at least
// iouThreshold.
func BoxesOverlap(a, b image.Rectangle, iouThreshold float64) bool {
	inter := a.Intersect(b)
	if inter.Empty() {
		return false
	}
	interArea := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if union <= 0 {
		return false
	}
	return float64(interArea)/float64(union) >= iouThreshold
}

// Confirmed is a motion detection corroborated by an object detection.
type Confirmed struct {
	Motion vision.Detection
	Object Object
}

// Confirm matches motion boxes against detector objects. A motion box is
// confirmed when its center lies inside the ROI polygon and it overlaps an
// object box per IoU. Each motion box takes the first matching object.
func Confirm(motions []vision.Detection, objects []Object, rois []vision.ROI, iouThreshold float64) []Confirmed {
	if len(motions) == 0 || len(objects) == 0 {
		return nil
	}

	byName := make(map[string]geometry.Polygon, len(rois))
	for _, r := range rois {
		byName[r.Name] = r.Points
	}

	var confirmed []Confirmed
	for _, m := range motions {
		poly, ok := byName[m.ROIName]
		if !ok {
			continue
		}
		center := geometry.Point{
			X: (m.Box.Min.X + m.Box.Max.X) / 2,
			Y: (m.Box.Min.Y + m.Box.Max.Y) / 2,
		}
		if !geometry.PointInPolygon(center, poly) {
			continue
		}
		for _, o := range objects {
			if BoxesOverlap(m.Box, o.Box, iouThreshold) {
				confirmed = append(confirmed, Confirmed{Motion: m, Object: o})
				break
			}
		}
	}
	return confirmed
}
