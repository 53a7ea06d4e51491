package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/stt"
)

const (
	voiceProcessorName     = "voice-processor"
	voiceDefaultConfidence = 0.85
	voiceFallbackMarker    = "[voice input captured - recognition unavailable]"
)

type voiceProcessor struct {
	pipeline   *audio.Pipeline
	recognizer stt.Recognizer
}

// NewVoiceProcessor runs recorded speech through the audio quality pipeline
// and hands the canonical artifact to the recognizer collaborator.
func NewVoiceProcessor(pipeline *audio.Pipeline, recognizer stt.Recognizer) Processor {
	return &voiceProcessor{pipeline: pipeline, recognizer: recognizer}
}

func (p *voiceProcessor) Channel() input.Channel { return input.ChannelVoice }

func (p *voiceProcessor) Validate(env *input.Envelope) bool {
	if env == nil || env.Audio == nil || len(env.Audio.Data) == 0 {
		return false
	}
	return env.Audio.MIME == "" || strings.HasPrefix(env.Audio.MIME, "audio/")
}

func (p *voiceProcessor) Process(ctx context.Context, env *input.Envelope) (*input.Result, error) {
	res := input.NewResult(env, voiceProcessorName)

	pre, err := p.pipeline.PreprocessForRecognition(env.Audio.Data)
	if err != nil {
		return nil, fmt.Errorf("preprocess audio: %w", err)
	}
	report := audio.ReportFromMetrics(pre.Metrics, 0)
	res.Warnings = append(res.Warnings, report.Warnings...)

	transcript, err := p.recognizer.Transcribe(ctx, pre)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	res.Content = transcript.Text
	switch {
	case transcript.Confidence > 0:
		res.Confidence = transcript.Confidence
	case env.Confidence != nil:
		res.Confidence = *env.Confidence
	default:
		res.Confidence = voiceDefaultConfidence
	}
	res.Metadata["applied_operations"] = strings.Join(pre.Applied, ",")
	res.Metadata["quality_score"] = fmt.Sprintf("%.3f", pre.Metrics.QualityScore)
	return res, nil
}

func (p *voiceProcessor) Fallback(env *input.Envelope) *input.Result {
	res := input.NewResult(env, voiceProcessorName)
	res.Content = voiceFallbackMarker
	res.Confidence = 0
	res.AddError("voice recognition unavailable")
	return res
}
