package vision

import (
	"image"
	"math"
)

// Metrics holds the measured quality of a decoded frame.
type Metrics struct {
	Brightness   float64 `json:"brightness"`
	Contrast     float64 `json:"contrast"`
	Sharpness    float64 `json:"sharpness"`
	TooDark      bool    `json:"too_dark"`
	TooBright    bool    `json:"too_bright"`
	Blurry       bool    `json:"blurry"`
	QualityScore float64 `json:"quality_score"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

const (
	darkThreshold    = 0.2
	brightThreshold  = 0.9
	blurryThreshold  = 0.3
	dimBound         = 0.3
	glareBound       = 0.8
	lowContrastBound = 0.1
)

// Analyze measures brightness, contrast and sharpness over the perceptual
// luma plane. The quality score is a chain of multiplicative penalties and
// is never re-normalized.
func Analyze(img image.Image) Metrics {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	m := Metrics{Width: w, Height: h, QualityScore: 1.0}
	if w == 0 || h == 0 {
		m.TooDark = true
		m.QualityScore = 0
		return m
	}

	luma := lumaPlane(img)
	n := float64(len(luma))

	var sum float64
	for _, l := range luma {
		sum += l
	}
	m.Brightness = sum / n

	var varSum float64
	for _, l := range luma {
		d := l - m.Brightness
		varSum += d * d
	}
	m.Contrast = math.Sqrt(varSum / n)

	m.Sharpness = laplacianSharpness(luma, w, h)

	m.TooDark = m.Brightness < darkThreshold
	m.TooBright = m.Brightness > brightThreshold
	m.Blurry = m.Sharpness < blurryThreshold

	if m.TooDark || m.TooBright {
		m.QualityScore *= 0.5
	} else if m.Brightness < dimBound || m.Brightness > glareBound {
		m.QualityScore *= 0.7
	}
	if m.Blurry {
		m.QualityScore *= 0.6
	}
	if m.Contrast < lowContrastBound {
		m.QualityScore *= 0.7
	}
	return m
}

// lumaPlane extracts normalized [0,1] perceptual luma per pixel.
func lumaPlane(img image.Image) []float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	luma := make([]float64, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			l := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			luma = append(luma, l/255)
		}
	}
	return luma
}

// laplacianSharpness is the normalized variance of a 4-neighbor discrete
// Laplacian, scaled x2 and clamped to 1.
func laplacianSharpness(luma []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	var sum, sumSq float64
	var count int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*luma[y*w+x] - luma[y*w+x-1] - luma[y*w+x+1] - luma[(y-1)*w+x] - luma[(y+1)*w+x]
			sum += lap
			sumSq += lap * lap
			count++
		}
	}
	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	sharpness := variance * 2
	if sharpness > 1 {
		sharpness = 1
	}
	if sharpness < 0 {
		sharpness = 0
	}
	return sharpness
}
