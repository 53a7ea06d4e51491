package ocr

import (
	"context"
	"fmt"

	"github.com/ablelabs/able-core/internal/vision"
)

type mockExtractor struct{}

// NewMockExtractor returns the deterministic placeholder backend. Its
// confidence tracks the measured frame quality so downstream thresholds
// behave as they would against a real engine.
func NewMockExtractor() Extractor {
	return &mockExtractor{}
}

func (m *mockExtractor) Extract(_ context.Context, pre *vision.Preprocessed) (Extraction, error) {
	confidence := 0.8 * pre.Metrics.QualityScore
	text := fmt.Sprintf("[extracted text %dx%d quality=%.2f]", pre.Width, pre.Height, pre.Metrics.QualityScore)
	frame := Box{X: 0, Y: 0, Width: pre.Width, Height: pre.Height}
	return Extraction{
		Text:       text,
		Confidence: confidence,
		Blocks: []Block{{
			Confidence: confidence,
			Box:        frame,
			Lines: []Line{{
				Confidence: confidence,
				Box:        frame,
				Words: []Word{{
					Text:       text,
					Confidence: confidence,
					Box:        frame,
				}},
			}},
		}},
	}, nil
}
