package capture

import (
	"context"

	"github.com/ablelabs/able-core/internal/input"
)

// DeviceInfo describes one enumerable capture device.
type DeviceInfo struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// StreamConfig is the acquisition request handed to a provider. The quality
// floor is consumed by the manager, not the provider.
type StreamConfig struct {
	DeviceID         string
	Facing           string
	Width            int
	Height           int
	FrameRate        int
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	MinQualityScore  float64
}

// FrameStream is a live camera stream handing out encoded frames.
type FrameStream interface {
	Grab(ctx context.Context) ([]byte, error)
	Stop() error
}

// PCMStream is a live microphone stream handing out 16-bit PCM blocks.
type PCMStream interface {
	Chunk(ctx context.Context) ([]byte, error)
	Stop() error
}

// CameraProvider abstracts camera hardware. Enumeration is a pure read
// with no state effect.
type CameraProvider interface {
	RequestAccess(ctx context.Context, cfg StreamConfig) (FrameStream, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// AudioProvider abstracts microphone hardware.
type AudioProvider interface {
	RequestAccess(ctx context.Context, cfg StreamConfig) (PCMStream, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// Sink consumes a captured envelope and returns the processed result. The
// router's Process method satisfies it; sinks never fail.
type Sink func(ctx context.Context, env *input.Envelope) *input.Result
