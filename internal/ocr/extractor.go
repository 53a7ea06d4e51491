package ocr

import (
	"context"
	"fmt"

	"github.com/ablelabs/able-core/internal/config"
	"github.com/ablelabs/able-core/internal/vision"
)

// Box is a pixel-space bounding box.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Word is the smallest recognized span.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Line groups words sharing a baseline.
type Line struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Words      []Word  `json:"words,omitempty"`
}

// Block groups lines into a layout region.
type Block struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Lines      []Line  `json:"lines,omitempty"`
}

// Extraction is the full text artifact: flat text, overall confidence and
// the block/line/word hierarchy.
type Extraction struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Blocks     []Block `json:"blocks,omitempty"`
}

// Extractor abstracts optical character recognition backends. Implementations
// consume the canonical preprocessed grayscale frame only.
type Extractor interface {
	Extract(ctx context.Context, pre *vision.Preprocessed) (Extraction, error)
}

// New selects an extractor backend by configured mode.
func New(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockExtractor(), nil
	case "exec":
		return NewExecExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown ocr mode %q", cfg.Mode)
	}
}
