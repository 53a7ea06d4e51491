package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ablelabs/able-core/internal/input"
)

const textProcessorName = "text-processor"

type textProcessor struct{}

// NewTextProcessor handles typed text. Trimming is the only transformation;
// typed input is fully trusted.
func NewTextProcessor() Processor {
	return &textProcessor{}
}

func (p *textProcessor) Channel() input.Channel { return input.ChannelText }

func (p *textProcessor) Validate(env *input.Envelope) bool {
	return env != nil && env.Text != ""
}

func (p *textProcessor) Process(_ context.Context, env *input.Envelope) (*input.Result, error) {
	res := input.NewResult(env, textProcessorName)
	res.Content = strings.TrimSpace(env.Text)
	res.Confidence = 1.0
	return res, nil
}

func (p *textProcessor) Fallback(env *input.Envelope) *input.Result {
	res := input.NewResult(env, textProcessorName)
	if env != nil {
		res.Content = fmt.Sprint(env.Text)
	}
	res.Confidence = 0.5
	res.AddWarning("text processed without normalization")
	return res
}
