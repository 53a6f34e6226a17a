package camera

import (
	"image"
	"image/color"

	"vigil/internal/geometry"
)

// Overlay colors: committed ROIs in blue, in-progress edits in yellow,
// motion boxes in green, object boxes in red.
var (
	colorROI    = color.RGBA{0, 0, 255, 255}
	colorEdit   = color.RGBA{255, 255, 0, 255}
	colorMotion = color.RGBA{0, 255, 0, 255}
	colorObject = color.RGBA{255, 0, 0, 255}
)

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
		return
	}
	i := img.PixOffset(x, y)
	img.Pix[i] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

// drawLine draws a 1px segment with Bresenham's algorithm.
func drawLine(img *image.RGBA, a, b geometry.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy

	x, y := a.X, a.Y
	for {
		setPixel(img, x, y, c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// drawPolygon outlines poly; closed also draws the last-to-first edge.
func drawPolygon(img *image.RGBA, poly geometry.Polygon, c color.RGBA, closed bool) {
	if len(poly) < 2 {
		return
	}
	for i := 1; i < len(poly); i++ {
		drawLine(img, poly[i-1], poly[i], c)
	}
	if closed {
		drawLine(img, poly[len(poly)-1], poly[0], c)
	}
}

// drawRect outlines a rectangle.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	tl := geometry.Point{X: r.Min.X, Y: r.Min.Y}
	tr := geometry.Point{X: r.Max.X - 1, Y: r.Min.Y}
	br := geometry.Point{X: r.Max.X - 1, Y: r.Max.Y - 1}
	bl := geometry.Point{X: r.Min.X, Y: r.Max.Y - 1}
	drawLine(img, tl, tr, c)
	drawLine(img, tr, br, c)
	drawLine(img, br, bl, c)
	drawLine(img, bl, tl, c)
}

// drawMarker fills a small square centered on p, used for edit vertices.
func drawMarker(img *image.RGBA, p geometry.Point, c color.RGBA) {
	const r = 3
	for y := p.Y - r; y <= p.Y+r; y++ {
		for x := p.X - r; x <= p.X+r; x++ {
			setPixel(img, x, y, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
