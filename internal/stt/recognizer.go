package stt

import (
	"context"
	"fmt"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/config"
)

// Transcript captures recognizer output.
type Transcript struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts speech-to-text backends. Implementations consume the
// canonical preprocessed artifact only.
type Recognizer interface {
	Transcribe(ctx context.Context, pre *audio.Preprocessed) (Transcript, error)
}

// New selects a recognizer backend by configured mode.
func New(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "google":
		return NewGoogleRecognizer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
