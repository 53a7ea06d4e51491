package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/config"
)

type googleRecognizer struct {
	cfg config.STTConfig
}

// NewGoogleRecognizer transcribes via Google Cloud Speech-to-Text using
// non-streaming recognition over the canonical LINEAR16 artifact.
// Credentials come from the ambient application-default environment.
func NewGoogleRecognizer(cfg config.STTConfig) Recognizer {
	return &googleRecognizer{cfg: cfg}
}

func (g *googleRecognizer) Transcribe(ctx context.Context, pre *audio.Preprocessed) (Transcript, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return Transcript{}, fmt.Errorf("create speech client: %w", err)
	}
	defer client.Close()

	language := g.cfg.Language
	if language == "" {
		language = "en-US"
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(pre.SampleRate),
			AudioChannelCount: 1,
			LanguageCode:      language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pre.WAV},
		},
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("recognize: %w", err)
	}

	var best Transcript
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if best.Text != "" {
			best.Text += " "
		}
		best.Text += alt.Transcript
		if float64(alt.Confidence) > best.Confidence {
			best.Confidence = float64(alt.Confidence)
		}
	}
	if best.Text == "" {
		return Transcript{}, fmt.Errorf("no speech detected in audio")
	}
	return best, nil
}
