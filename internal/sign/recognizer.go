package sign

import (
	"context"
	"fmt"

	"github.com/ablelabs/able-core/internal/config"
)

// Result captures sign recognizer output.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer abstracts sign-language recognition backends. Video stays an
// opaque payload; this core never decodes it.
type Recognizer interface {
	Recognize(ctx context.Context, video []byte, mime string) (Result, error)
}

// New selects a recognizer backend by configured mode.
func New(cfg config.SignConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown sign mode %q", cfg.Mode)
	}
}
