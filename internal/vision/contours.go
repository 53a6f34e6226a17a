package vision

import "image"

// Contour is one external connected region of a binary image.
type Contour struct {
	Box  image.Rectangle
	Area int
}

// FindContours labels the 8-connected white regions of a binary image and
// returns one contour per region with its bounding box and pixel area.
func FindContours(bin *image.Gray) []Contour {
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	visited := make([]bool, w*h)
	var contours []Contour
	var stack []int

	for y := 0; y < h; y++ {
		row := bin.Pix[y*bin.Stride:]
		for x := 0; x < w; x++ {
			idx := y*w + x
			if visited[idx] || row[x] != 255 {
				continue
			}

			// Flood-fill one component.
			minX, minY, maxX, maxY := x, y, x, y
			area := 0
			stack = append(stack[:0], idx)
			visited[idx] = true
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := cur%w, cur/w
				area++
				if cx < minX {
					minX = cx
				}
				if cx > maxX {
					maxX = cx
				}
				if cy < minY {
					minY = cy
				}
				if cy > maxY {
					maxY = cy
				}
				for dy := -1; dy <= 1; dy++ {
					ny := cy + dy
					if ny < 0 || ny >= h {
						continue
					}
					nrow := bin.Pix[ny*bin.Stride:]
					for dx := -1; dx <= 1; dx++ {
						nx := cx + dx
						if nx < 0 || nx >= w {
							continue
						}
						nidx := ny*w + nx
						if !visited[nidx] && nrow[nx] == 255 {
							visited[nidx] = true
							stack = append(stack, nidx)
						}
					}
				}
			}

			contours = append(contours, Contour{
				Box:  image.Rect(minX, minY, maxX+1, maxY+1),
				Area: area,
			})
		}
	}
	return contours
}
