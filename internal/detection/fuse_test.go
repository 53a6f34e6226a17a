package detection

import (
	"image"
	"testing"

	"vigil/internal/geometry"
	"vigil/internal/vision"
)

func TestBoxesOverlap(t *testing.T) {
	tests := []struct {
		name      string
		a, b      image.Rectangle
		threshold float64
		want      bool
	}{
		{
			name:      "identical boxes",
			a:         image.Rect(0, 0, 100, 100),
			b:         image.Rect(0, 0, 100, 100),
			threshold: 0.3,
			want:      true,
		},
		{
			name:      "disjoint boxes",
			a:         image.Rect(0, 0, 50, 50),
			b:         image.Rect(100, 100, 150, 150),
			threshold: 0.3,
			want:      false,
		},
		{
			// intersection 50x100=5000, union 10000+10000-5000=15000,
			// IoU = 1/3
			name:      "half offset clears threshold",
			a:         image.Rect(0, 0, 100, 100),
			b:         image.Rect(50, 0, 150, 100),
			threshold: 0.3,
			want:      true,
		},
		{
			name:      "half offset misses higher threshold",
			a:         image.Rect(0, 0, 100, 100),
			b:         image.Rect(50, 0, 150, 100),
			threshold: 0.5,
			want:      false,
		},
		{
			// intersection 10x10=100, union 10000+10000-100=19900
			name:      "corner touch below threshold",
			a:         image.Rect(0, 0, 100, 100),
			b:         image.Rect(90, 90, 190, 190),
			threshold: 0.3,
			want:      false,
		},
		{
			name:      "edge adjacency is not overlap",
			a:         image.Rect(0, 0, 50, 50),
			b:         image.Rect(50, 0, 100, 50),
			threshold: 0.0,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BoxesOverlap(tt.a, tt.b, tt.threshold); got != tt.want {
				t.Errorf("BoxesOverlap(%v, %v, %v) = %v, want %v",
					tt.a, tt.b, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	rois := []vision.ROI{
		{
			Name:   "gate",
			Points: geometry.Polygon{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 200}, {X: 0, Y: 200}},
		},
	}
	motion := vision.Detection{
		ROIName: "gate",
		Box:     image.Rect(40, 40, 120, 120),
		Area:    6400,
	}
	person := Object{
		Box:        image.Rect(50, 40, 130, 120),
		Label:      "person",
		Confidence: 0.9,
	}

	t.Run("overlapping object confirms motion", func(t *testing.T) {
		got := Confirm([]vision.Detection{motion}, []Object{person}, rois, DefaultIoUThreshold)
		if len(got) != 1 {
			t.Fatalf("got %d confirmations, want 1", len(got))
		}
		if got[0].Object.Label != "person" {
			t.Errorf("matched object %q, want person", got[0].Object.Label)
		}
	})

	t.Run("distant object does not confirm", func(t *testing.T) {
		far := Object{Box: image.Rect(500, 500, 600, 600), Label: "car"}
		if got := Confirm([]vision.Detection{motion}, []Object{far}, rois, DefaultIoUThreshold); len(got) != 0 {
			t.Errorf("got %d confirmations, want 0", len(got))
		}
	})

	t.Run("motion centered outside the ROI is skipped", func(t *testing.T) {
		outside := vision.Detection{
			ROIName: "gate",
			Box:     image.Rect(180, 180, 400, 400), // center (290,290)
		}
		obj := Object{Box: image.Rect(180, 180, 400, 400), Label: "person"}
		if got := Confirm([]vision.Detection{outside}, []Object{obj}, rois, DefaultIoUThreshold); len(got) != 0 {
			t.Errorf("got %d confirmations, want 0", len(got))
		}
	})

	t.Run("unknown ROI name is skipped", func(t *testing.T) {
		stray := motion
		stray.ROIName = "driveway"
		if got := Confirm([]vision.Detection{stray}, []Object{person}, rois, DefaultIoUThreshold); len(got) != 0 {
			t.Errorf("got %d confirmations, want 0", len(got))
		}
	})

	t.Run("no objects yields nil", func(t *testing.T) {
		if got := Confirm([]vision.Detection{motion}, nil, rois, DefaultIoUThreshold); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}
