package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/ocr"
	"github.com/ablelabs/able-core/internal/vision"
)

const (
	cameraProcessorName     = "camera-processor"
	cameraDefaultConfidence = 0.8
	cameraFallbackMarker    = "[image captured - text extraction unavailable]"
)

type cameraProcessor struct {
	pipeline  *vision.Pipeline
	extractor ocr.Extractor
}

// NewCameraProcessor runs a photographed frame through the image quality
// pipeline and hands the grayscale artifact to the extraction collaborator.
func NewCameraProcessor(pipeline *vision.Pipeline, extractor ocr.Extractor) Processor {
	return &cameraProcessor{pipeline: pipeline, extractor: extractor}
}

func (p *cameraProcessor) Channel() input.Channel { return input.ChannelCamera }

func (p *cameraProcessor) Validate(env *input.Envelope) bool {
	if env == nil || env.Image == nil || len(env.Image.Data) == 0 {
		return false
	}
	return env.Image.MIME == "" || strings.HasPrefix(env.Image.MIME, "image/")
}

func (p *cameraProcessor) Process(ctx context.Context, env *input.Envelope) (*input.Result, error) {
	res := input.NewResult(env, cameraProcessorName)

	pre, err := p.pipeline.PreprocessForExtraction(env.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("preprocess image: %w", err)
	}
	if pre.Metrics.Blurry {
		res.AddWarning("frame is blurry; extraction accuracy may suffer")
	}
	if pre.Metrics.TooDark {
		res.AddWarning("frame is underexposed")
	} else if pre.Metrics.TooBright {
		res.AddWarning("frame is overexposed")
	}

	extraction, err := p.extractor.Extract(ctx, pre)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	res.Content = extraction.Text
	switch {
	case extraction.Confidence > 0:
		res.Confidence = extraction.Confidence
	case env.Confidence != nil:
		res.Confidence = *env.Confidence
	default:
		res.Confidence = cameraDefaultConfidence
	}
	res.Metadata["applied_operations"] = strings.Join(pre.Applied, ",")
	res.Metadata["quality_score"] = fmt.Sprintf("%.3f", pre.Metrics.QualityScore)
	return res, nil
}

func (p *cameraProcessor) Fallback(env *input.Envelope) *input.Result {
	res := input.NewResult(env, cameraProcessorName)
	res.Content = cameraFallbackMarker
	res.Confidence = 0
	res.AddError("text extraction unavailable")
	return res
}
