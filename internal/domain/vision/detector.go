package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// Detector localizes objects (faces, eyes) in a grayscale image. Rectangles
// are in the coordinates of the image passed in.
type Detector interface {
	Detect(gray gocv.Mat) []image.Rectangle
}

// Largest picks the detection with the biggest area. Ties keep the first.
func Largest(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}
	best := rects[0]
	for _, r := range rects[1:] {
		if area(r) > area(best) {
			best = r
		}
	}
	return best, true
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
