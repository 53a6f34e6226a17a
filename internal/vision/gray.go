package vision

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// ToGray converts a frame to 8-bit grayscale using Rec. 601 luma weights.
func ToGray(frame image.Image) *image.Gray {
	if g, ok := frame.(*image.Gray); ok {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}

	b := frame.Bounds()
	gray := image.NewGray(b)

	if rgba, ok := frame.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			src := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
			dst := gray.Pix[(y-b.Min.Y)*gray.Stride:]
			for x := 0; x < b.Dx(); x++ {
				r := uint32(src[x*4])
				g := uint32(src[x*4+1])
				bb := uint32(src[x*4+2])
				dst[x] = uint8((299*r + 587*g + 114*bb) / 1000)
			}
		}
		return gray
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(frame.At(x, y)))
		}
	}
	return gray
}

// Blur applies a separable 3x3 Gaussian approximation ([1 2 1]/4 in each
// axis) to suppress sensor noise before differencing.
func Blur(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		out := image.NewGray(b)
		copy(out.Pix, src.Pix)
		return out
	}

	tmp := image.NewGray(b)
	out := image.NewGray(b)

	// Horizontal pass.
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		dst := tmp.Pix[y*tmp.Stride:]
		dst[0] = row[0]
		dst[w-1] = row[w-1]
		for x := 1; x < w-1; x++ {
			dst[x] = uint8((uint32(row[x-1]) + 2*uint32(row[x]) + uint32(row[x+1])) / 4)
		}
	}

	// Vertical pass.
	copy(out.Pix[:w], tmp.Pix[:w])
	copy(out.Pix[(h-1)*out.Stride:(h-1)*out.Stride+w], tmp.Pix[(h-1)*tmp.Stride:(h-1)*tmp.Stride+w])
	for y := 1; y < h-1; y++ {
		above := tmp.Pix[(y-1)*tmp.Stride:]
		cur := tmp.Pix[y*tmp.Stride:]
		below := tmp.Pix[(y+1)*tmp.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = uint8((uint32(above[x]) + 2*uint32(cur[x]) + uint32(below[x])) / 4)
		}
	}
	return out
}

// ResizeGray resamples src to w x h. Used to bring a stale background
// reference back in line with the current frame dimensions.
func ResizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// ResizeRGBA resamples a color frame to w x h.
func ResizeRGBA(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
