package router

import (
	"fmt"
	"time"

	"github.com/ablelabs/able-core/internal/input"
)

// UnsupportedChannelError reports an envelope for a channel nothing is
// registered to handle.
type UnsupportedChannelError struct {
	Channel input.Channel
}

func (e *UnsupportedChannelError) Error() string {
	return fmt.Sprintf("no processor registered for channel %q", e.Channel)
}

// ChannelValidationError reports content that is structurally fine but
// wrong for its declared channel.
type ChannelValidationError struct {
	Channel input.Channel
}

func (e *ChannelValidationError) Error() string {
	return fmt.Sprintf("content failed %s channel validation", e.Channel)
}

// TimeoutError reports a processor that did not settle in time.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("processing did not complete within %s", e.Limit)
}

// ProcessingError reports a processor-internal failure.
type ProcessingError struct {
	Channel input.Channel
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s processing failed: %v", e.Channel, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// FallbackError reports a fallback that itself failed, leaving nothing to
// degrade to.
type FallbackError struct {
	Channel input.Channel
	Err     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s fallback failed: %v", e.Channel, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }
