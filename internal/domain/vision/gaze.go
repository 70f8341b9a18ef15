package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	neutralGaze = 0.5
	// rows above this fraction of the eye box hold the brow and upper lid
	eyelidCrop = 0.3
)

// GazeRatio locates the darkest pixel of an eye crop and returns its
// horizontal position as a fraction of the crop width. Degenerate crops
// yield 0.5.
func GazeRatio(eye gocv.Mat) float64 {
	r, _ := gazeRatio(eye)
	return r
}

func gazeRatio(eye gocv.Mat) (ratio float64, ok bool) {
	defer func() {
		if recover() != nil {
			ratio, ok = neutralGaze, false
		}
	}()

	if eye.Empty() {
		return neutralGaze, false
	}

	gray := eye
	if eye.Channels() > 1 {
		converted := gocv.NewMat()
		defer converted.Close()
		toGray(eye, &converted)
		gray = converted
	}

	h, w := gray.Rows(), gray.Cols()
	top := int(float64(h) * eyelidCrop)
	if w == 0 || top >= h {
		return neutralGaze, false
	}

	lower := gray.Region(image.Rect(0, top, w, h))
	defer lower.Close()

	equalized := gocv.NewMat()
	defer equalized.Close()
	gocv.EqualizeHist(lower, &equalized)

	_, _, minLoc, _ := gocv.MinMaxLoc(equalized)
	return float64(minLoc.X) / float64(w), true
}

// gazeDeviation averages |ratio-0.5|*2 over eyes in the upper half of the
// face. Eyes below the midline are usually nostrils or mouth corners.
func gazeDeviation(face gocv.Mat, eyes []image.Rectangle) (deviation float64, fallbacks int) {
	bounds := image.Rect(0, 0, face.Cols(), face.Rows())
	midline := float64(face.Rows()) / 2

	var sum float64
	n := 0
	for _, e := range eyes {
		if float64(e.Min.Y) >= midline {
			continue
		}
		r := e.Intersect(bounds)
		if r.Empty() {
			continue
		}
		crop := face.Region(r)
		ratio, ok := gazeRatio(crop)
		crop.Close()
		if !ok {
			fallbacks++
		}
		sum += math.Abs(ratio - neutralGaze)
		n++
	}
	if n == 0 {
		return 0, fallbacks
	}
	return sum / float64(n) * 2, fallbacks
}

func toGray(src gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 1:
		src.CopyTo(dst)
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	}
}
