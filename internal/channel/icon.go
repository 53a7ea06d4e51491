package channel

import (
	"context"
	"strings"

	"github.com/ablelabs/able-core/internal/input"
)

const iconProcessorName = "icon-processor"

type iconProcessor struct{}

// NewIconProcessor turns a picked icon sequence into text: icon labels in
// pick order, then any free-text phrases.
func NewIconProcessor() Processor {
	return &iconProcessor{}
}

func (p *iconProcessor) Channel() input.Channel { return input.ChannelIcon }

func (p *iconProcessor) Validate(env *input.Envelope) bool {
	return env != nil && env.Icons != nil && len(env.Icons.Icons) > 0
}

func (p *iconProcessor) Process(_ context.Context, env *input.Envelope) (*input.Result, error) {
	res := input.NewResult(env, iconProcessorName)
	parts := labels(env.Icons)
	parts = append(parts, env.Icons.Phrases...)
	res.Content = strings.Join(parts, " ")
	res.Confidence = 0.9
	return res, nil
}

func (p *iconProcessor) Fallback(env *input.Envelope) *input.Result {
	res := input.NewResult(env, iconProcessorName)
	if env != nil && env.Icons != nil {
		res.Content = strings.Join(labels(env.Icons), " ")
	}
	res.Confidence = 0.6
	res.AddWarning("icon phrases dropped; labels only")
	return res
}

func labels(seq *input.IconSequence) []string {
	out := make([]string, 0, len(seq.Icons))
	for _, icon := range seq.Icons {
		if icon.Label != "" {
			out = append(out, icon.Label)
		}
	}
	return out
}
