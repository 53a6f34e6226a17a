package vision

import "image"

// Backend is the acceleration seam for the pixel-level differencing
// primitives. The software backend is the only in-tree implementation; a
// vectorized or GPU-assisted backend can be dropped in at startup without
// touching the engine.
type Backend interface {
	// AbsDiff writes the clamped absolute difference of a and b into dst.
	AbsDiff(a, b, dst *image.Gray)
	// Threshold binarizes src into dst: values above cutoff become 255,
	// the rest 0.
	Threshold(src, dst *image.Gray, cutoff uint8)
	// Dilate grows the white regions of src with a structuring element of
	// the given radius, repeated for iterations passes, writing into dst.
	Dilate(src, dst *image.Gray, radius, iterations int)
}

// SoftwareBackend implements Backend with plain pixel loops.
type SoftwareBackend struct{}

// NewSoftwareBackend returns the portable CPU backend.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{}
}

func (*SoftwareBackend) AbsDiff(a, b, dst *image.Gray) {
	n := len(a.Pix)
	if len(b.Pix) < n {
		n = len(b.Pix)
	}
	for i := 0; i < n; i++ {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		dst.Pix[i] = uint8(d)
	}
}

func (*SoftwareBackend) Threshold(src, dst *image.Gray, cutoff uint8) {
	for i, v := range src.Pix {
		if v > cutoff {
			dst.Pix[i] = 255
		} else {
			dst.Pix[i] = 0
		}
	}
}

func (*SoftwareBackend) Dilate(src, dst *image.Gray, radius, iterations int) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	cur := image.NewGray(b)
	copy(cur.Pix, src.Pix)
	next := image.NewGray(b)

	for it := 0; it < iterations; it++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var v uint8
			scan:
				for dy := -radius; dy <= radius; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					row := cur.Pix[yy*cur.Stride:]
					for dx := -radius; dx <= radius; dx++ {
						xx := x + dx
						if xx < 0 || xx >= w {
							continue
						}
						if row[xx] == 255 {
							v = 255
							break scan
						}
					}
				}
				next.Pix[y*next.Stride+x] = v
			}
		}
		cur, next = next, cur
	}
	copy(dst.Pix, cur.Pix)
}
