package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	brightenFactor     = 1.5
	darkenFactor       = 0.7
	contrastFactor     = 1.3
	contrastMidpoint   = 128
	lowContrastTrigger = 0.15
)

// Preprocessed is the canonical extraction artifact: a losslessly encoded
// grayscale frame plus the exact corrections applied to produce it. It
// belongs solely to the caller; the pipeline keeps no reference.
type Preprocessed struct {
	PNG     []byte
	Applied []string
	Metrics Metrics
	Width   int
	Height  int
	Elapsed time.Duration
}

// Pipeline measures and conditionally corrects a photographed frame before
// it reaches a text extractor. Stateless and safe for concurrent use.
type Pipeline struct{}

// NewPipeline returns a ready pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// PreprocessForExtraction decodes a frame, analyzes it, then applies in
// fixed order: brightness correction when too dark or too bright, contrast
// stretch when flat, grayscale conversion always, and a 3x3 sharpening pass
// when blurry. Sharpening runs strictly after the grayscale conversion.
func (p *Pipeline) PreprocessForExtraction(raw []byte) (*Preprocessed, error) {
	start := time.Now()

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	metrics := Analyze(src)
	pre := &Preprocessed{
		Metrics: metrics,
		Width:   metrics.Width,
		Height:  metrics.Height,
	}

	rgba := toNRGBA(src)

	if metrics.TooDark {
		scaleChannels(rgba, brightenFactor)
		pre.Applied = append(pre.Applied, "brightness-adjust")
	} else if metrics.TooBright {
		scaleChannels(rgba, darkenFactor)
		pre.Applied = append(pre.Applied, "brightness-adjust")
	}

	if metrics.Contrast < lowContrastTrigger {
		stretchContrast(rgba, contrastFactor)
		pre.Applied = append(pre.Applied, "contrast-adjust")
	}

	gray := toGray(rgba)
	pre.Applied = append(pre.Applied, "grayscale")

	if metrics.Blurry {
		gray = sharpen(gray)
		pre.Applied = append(pre.Applied, "sharpen")
	}

	var out bytes.Buffer
	if err := png.Encode(&out, gray); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	pre.PNG = out.Bytes()
	pre.Elapsed = time.Since(start)
	return pre, nil
}

// AnalyzeBytes decodes and measures a frame without correcting it. Capture
// managers use it as a quality gate before routing.
func AnalyzeBytes(raw []byte) (Metrics, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Metrics{}, fmt.Errorf("decode image: %w", err)
	}
	return Analyze(src), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}

// scaleChannels multiplies every color channel by factor, clamped to [0,255].
func scaleChannels(img *image.NRGBA, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clampByte(float64(img.Pix[i+c]) * factor)
		}
	}
}

// stretchContrast scales channel distance from the midpoint by factor.
func stretchContrast(img *image.NRGBA, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c])
			img.Pix[i+c] = clampByte((v-contrastMidpoint)*factor + contrastMidpoint)
		}
	}
}

func toGray(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for i, j := 0, 0; i < len(img.Pix); i, j = i+4, j+1 {
		l := 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		gray.Pix[j] = clampByte(l)
	}
	return gray
}

// sharpen applies the fixed kernel [[0,-1,0],[-1,5,-1],[0,-1,0]]; edge
// pixels are copied through untouched.
func sharpen(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)
	copy(dst.Pix, src.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*src.Stride + x
			v := 5*float64(src.Pix[i]) -
				float64(src.Pix[i-1]) - float64(src.Pix[i+1]) -
				float64(src.Pix[i-src.Stride]) - float64(src.Pix[i+src.Stride])
			dst.Pix[y*dst.Stride+x] = clampByte(v)
		}
	}
	return dst
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
