package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/sign"
)

const (
	signProcessorName     = "sign-processor"
	signDefaultConfidence = 0.75
	signFallbackMarker    = "[sign input captured - recognition unavailable]"
)

type signProcessor struct {
	recognizer sign.Recognizer
}

// NewSignProcessor hands recorded sign-language video to the recognizer
// collaborator. The video payload stays opaque to this core.
func NewSignProcessor(recognizer sign.Recognizer) Processor {
	return &signProcessor{recognizer: recognizer}
}

func (p *signProcessor) Channel() input.Channel { return input.ChannelSign }

func (p *signProcessor) Validate(env *input.Envelope) bool {
	if env == nil || env.Video == nil || len(env.Video.Data) == 0 {
		return false
	}
	return env.Video.MIME == "" || strings.HasPrefix(env.Video.MIME, "video/")
}

func (p *signProcessor) Process(ctx context.Context, env *input.Envelope) (*input.Result, error) {
	res := input.NewResult(env, signProcessorName)

	recognized, err := p.recognizer.Recognize(ctx, env.Video.Data, env.Video.MIME)
	if err != nil {
		return nil, fmt.Errorf("recognize sign video: %w", err)
	}

	res.Content = recognized.Text
	switch {
	case recognized.Confidence > 0:
		res.Confidence = recognized.Confidence
	case env.Confidence != nil:
		res.Confidence = *env.Confidence
	default:
		res.Confidence = signDefaultConfidence
	}
	return res, nil
}

func (p *signProcessor) Fallback(env *input.Envelope) *input.Result {
	res := input.NewResult(env, signProcessorName)
	res.Content = signFallbackMarker
	res.Confidence = 0
	res.AddError("sign recognition unavailable")
	return res
}
