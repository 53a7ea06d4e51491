package sign

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns the deterministic placeholder backend.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(_ context.Context, video []byte, _ string) (Result, error) {
	return Result{
		Text:       fmt.Sprintf("[sign transcript length=%d]", len(video)),
		Confidence: 0,
	}, nil
}
