package geometry

import "math"

// Default editing distances in pixels: one snap radius for point
// merging/selection, a wider threshold for closing a polygon onto a frame
// corner.
const (
	DefaultSnapDistance    = 50
	DefaultCornerThreshold = 100
)

// Point is a 2D integer pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Polygon is an ordered sequence of points with an implicit closing edge
// from the last point back to the first.
type Polygon []Point

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// PointInPolygon reports whether p lies inside poly using ray casting.
// Points on the boundary count as inside.
func PointInPolygon(p Point, poly Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	p1 := poly[0]
	for i := 1; i <= n; i++ {
		p2 := poly[i%n]
		if onSegment(p, p1, p2) {
			return true
		}
		if p.Y > min(p1.Y, p2.Y) && p.Y <= max(p1.Y, p2.Y) && p.X <= max(p1.X, p2.X) {
			if p1.Y != p2.Y {
				xinters := float64(p.Y-p1.Y)*float64(p2.X-p1.X)/float64(p2.Y-p1.Y) + float64(p1.X)
				if p1.X == p2.X || float64(p.X) <= xinters {
					inside = !inside
				}
			}
		}
		p1 = p2
	}
	return inside
}

// onSegment reports whether p lies on the segment [a,b].
func onSegment(p, a, b Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

// AddPoint appends (x,y) to points, snapping to an already-placed point when
// one lies within snapDistance. Snapping reuses the existing coordinate
// exactly so repeated clicks close cleanly on a vertex.
func AddPoint(points Polygon, x, y int, snapDistance float64) Polygon {
	p := Point{X: x, Y: y}
	for _, q := range points {
		if Dist(p, q) < snapDistance {
			return append(points, q)
		}
	}
	return append(points, p)
}

// FrameCorners returns the four corners of a w x h frame in clockwise order
// starting at the origin.
func FrameCorners(w, h int) [4]Point {
	return [4]Point{
		{0, 0},
		{w - 1, 0},
		{w - 1, h - 1},
		{0, h - 1},
	}
}

// SnapToFrameBoundary clamps (x,y) to a frame corner or edge when the point
// lies within snapDistance of one. Corners win over edges so that clicks
// near a corner do not half-snap onto a single axis.
func SnapToFrameBoundary(x, y, frameWidth, frameHeight int, snapDistance float64) (int, int) {
	p := Point{X: x, Y: y}
	for _, c := range FrameCorners(frameWidth, frameHeight) {
		if Dist(p, c) < snapDistance {
			return c.X, c.Y
		}
	}
	d := int(snapDistance)
	switch {
	case abs(y) < d:
		return x, 0
	case abs(y-(frameHeight-1)) < d:
		return x, frameHeight - 1
	case abs(x) < d:
		return 0, y
	case abs(x-(frameWidth-1)) < d:
		return frameWidth - 1, y
	}
	return x, y
}

// ClosePolygon finalizes a polygon being drawn. When both the first and last
// point hug the same frame corner within cornerThreshold, that corner is
// appended so ROIs tracing the frame edge close exactly on the corner.
func ClosePolygon(points Polygon, corners [4]Point, cornerThreshold float64) Polygon {
	if len(points) < 2 {
		return points
	}
	first, last := points[0], points[len(points)-1]
	for _, c := range corners {
		if Dist(first, c) < cornerThreshold && Dist(last, c) < cornerThreshold {
			return append(points, c)
		}
	}
	return points
}

// MovePoint replaces the point at idx with (x,y). Out-of-range indices are
// ignored, which keeps a stale drag selection harmless.
func MovePoint(points Polygon, idx, x, y int) Polygon {
	if idx < 0 || idx >= len(points) {
		return points
	}
	points[idx] = Point{X: x, Y: y}
	return points
}

// DeletePoint removes the point at idx.
func DeletePoint(points Polygon, idx int) Polygon {
	if idx < 0 || idx >= len(points) {
		return points
	}
	return append(points[:idx], points[idx+1:]...)
}

// NearestPoint returns the index of the point closest to (x,y) within
// snapDistance, or false when none qualifies.
func NearestPoint(points Polygon, x, y int, snapDistance float64) (int, bool) {
	p := Point{X: x, Y: y}
	minDist := math.Inf(1)
	nearest := -1
	for i, q := range points {
		d := Dist(p, q)
		if d < minDist && d < snapDistance {
			minDist = d
			nearest = i
		}
	}
	if nearest < 0 {
		return 0, false
	}
	return nearest, true
}

// BoundingBox returns the axis-aligned bounding box of poly as
// (minX, minY, maxX, maxY). Degenerate polygons return zeros.
func BoundingBox(poly Polygon) (int, int, int, int) {
	if len(poly) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := poly[0].X, poly[0].Y
	for _, p := range poly[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
