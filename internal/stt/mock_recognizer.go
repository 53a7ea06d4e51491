package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/ablelabs/able-core/internal/audio"
)

type mockRecognizer struct{}

// NewMockRecognizer returns the deterministic placeholder backend.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pre *audio.Preprocessed) (Transcript, error) {
	return Transcript{
		Text:       fmt.Sprintf("[voice transcript duration=%s quality=%.2f]", pre.Metrics.Duration.Round(10*time.Millisecond), pre.Metrics.QualityScore),
		Confidence: 0,
	}, nil
}
