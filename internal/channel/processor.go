// Package channel implements one processor per input modality. Each
// processor pairs a primary transformation that may fail with a degraded
// fallback that never does.
package channel

import (
	"context"

	"github.com/ablelabs/able-core/internal/input"
)

// Processor converts one modality's raw content into a text artifact with a
// confidence value.
//
// Validate inspects structure and content type only, without I/O. Process
// performs the channel's transformation and may return an error. Fallback is
// the lower-quality alternative: it must not fail, always reports reduced
// confidence and carries a diagnostic warning or error.
type Processor interface {
	Channel() input.Channel
	Validate(env *input.Envelope) bool
	Process(ctx context.Context, env *input.Envelope) (*input.Result, error)
	Fallback(env *input.Envelope) *input.Result
}
