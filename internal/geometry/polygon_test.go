package geometry

import "testing"

func square(size int) Polygon {
	return Polygon{{0, 0}, {size, 0}, {size, size}, {0, size}}
}

func TestPointInPolygon(t *testing.T) {
	tests := []struct {
		name string
		poly Polygon
		p    Point
		want bool
	}{
		{
			name: "interior point",
			poly: square(100),
			p:    Point{50, 50},
			want: true,
		},
		{
			name: "far outside bounding box",
			poly: square(100),
			p:    Point{500, 500},
			want: false,
		},
		{
			name: "negative coordinates outside",
			poly: square(100),
			p:    Point{-10, 50},
			want: false,
		},
		{
			name: "boundary counts as inside",
			poly: square(100),
			p:    Point{0, 50},
			want: true,
		},
		{
			name: "vertex counts as inside",
			poly: square(100),
			p:    Point{100, 100},
			want: true,
		},
		{
			name: "concave polygon notch excluded",
			poly: Polygon{{0, 0}, {100, 0}, {100, 100}, {50, 40}, {0, 100}},
			p:    Point{50, 90},
			want: false,
		},
		{
			name: "concave polygon arm included",
			poly: Polygon{{0, 0}, {100, 0}, {100, 100}, {50, 40}, {0, 100}},
			p:    Point{90, 80},
			want: true,
		},
		{
			name: "degenerate two points",
			poly: Polygon{{0, 0}, {100, 100}},
			p:    Point{50, 50},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.p, tt.poly); got != tt.want {
				t.Errorf("PointInPolygon(%v, %v) = %v, want %v", tt.p, tt.poly, got, tt.want)
			}
		})
	}
}

func TestAddPoint(t *testing.T) {
	pts := Polygon{{10, 10}, {200, 10}}

	// Within snap distance of the first point: reuse its exact coordinate.
	pts = AddPoint(pts, 14, 13, DefaultSnapDistance)
	if got := pts[len(pts)-1]; got != (Point{10, 10}) {
		t.Errorf("snapped point = %v, want {10 10}", got)
	}

	// Far from everything: appended verbatim.
	pts = AddPoint(pts, 400, 300, DefaultSnapDistance)
	if got := pts[len(pts)-1]; got != (Point{400, 300}) {
		t.Errorf("appended point = %v, want {400 300}", got)
	}
}

func TestSnapToFrameBoundary(t *testing.T) {
	const w, h = 1280, 720

	tests := []struct {
		name         string
		x, y         int
		wantX, wantY int
	}{
		{"near origin corner", 20, 30, 0, 0},
		{"near bottom-right corner", 1260, 700, w - 1, h - 1},
		{"near top edge", 640, 12, 640, 0},
		{"near left edge", 8, 360, 0, 360},
		{"near right edge", 1270, 360, w - 1, 360},
		{"near bottom edge", 640, 710, 640, h - 1},
		{"center untouched", 640, 360, 640, 360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := SnapToFrameBoundary(tt.x, tt.y, w, h, DefaultSnapDistance)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("SnapToFrameBoundary(%d, %d) = (%d, %d), want (%d, %d)",
					tt.x, tt.y, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestClosePolygon(t *testing.T) {
	corners := FrameCorners(1280, 720)

	// First and last point both near the origin corner: corner appended.
	pts := Polygon{{30, 40}, {600, 40}, {600, 400}, {40, 30}}
	closed := ClosePolygon(pts, corners, DefaultCornerThreshold)
	if len(closed) != len(pts)+1 {
		t.Fatalf("expected corner appended, got %v", closed)
	}
	if closed[len(closed)-1] != (Point{0, 0}) {
		t.Errorf("appended corner = %v, want {0 0}", closed[len(closed)-1])
	}

	// Endpoints near different corners: untouched.
	pts = Polygon{{30, 40}, {600, 400}, {1250, 700}}
	closed = ClosePolygon(pts, corners, DefaultCornerThreshold)
	if len(closed) != len(pts) {
		t.Errorf("expected no corner appended, got %v", closed)
	}
}

func TestMoveAndDeletePoint(t *testing.T) {
	pts := Polygon{{0, 0}, {10, 0}, {10, 10}}

	pts = MovePoint(pts, 1, 20, 5)
	if pts[1] != (Point{20, 5}) {
		t.Errorf("moved point = %v, want {20 5}", pts[1])
	}

	// Out-of-range move is ignored.
	pts = MovePoint(pts, 99, 1, 1)
	if len(pts) != 3 {
		t.Errorf("out-of-range move changed polygon: %v", pts)
	}

	pts = DeletePoint(pts, 0)
	if len(pts) != 2 || pts[0] != (Point{20, 5}) {
		t.Errorf("after delete: %v", pts)
	}
}

func TestNearestPoint(t *testing.T) {
	pts := Polygon{{0, 0}, {100, 0}, {100, 100}}

	idx, ok := NearestPoint(pts, 98, 95, DefaultSnapDistance)
	if !ok || idx != 2 {
		t.Errorf("NearestPoint = (%d, %v), want (2, true)", idx, ok)
	}

	if _, ok := NearestPoint(pts, 500, 500, DefaultSnapDistance); ok {
		t.Error("expected no point within snap distance")
	}

	if _, ok := NearestPoint(nil, 0, 0, DefaultSnapDistance); ok {
		t.Error("expected no point for empty polygon")
	}
}
