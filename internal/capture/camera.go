package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/vision"
)

// Camera drives a frame stream through the capture state machine. It
// persists across capture cycles until Stop or Close.
type Camera struct {
	mu       sync.Mutex
	state    State
	provider CameraProvider
	stream   FrameStream
	pipeline *vision.Pipeline
	sink     Sink
	cfg      StreamConfig
	logger   *slog.Logger
}

// NewCamera builds an idle camera manager.
func NewCamera(provider CameraProvider, pipeline *vision.Pipeline, sink Sink, cfg StreamConfig, logger *slog.Logger) *Camera {
	return &Camera{
		state:    StateIdle,
		provider: provider,
		pipeline: pipeline,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "camera-capture")),
	}
}

// State returns the current machine state.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize acquires the camera stream. It is idempotent while a stream is
// already held. Access failure transitions to the error state; there is no
// automatic retry.
func (c *Camera) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateRequesting
	c.mu.Unlock()

	stream, err := c.provider.RequestAccess(ctx, c.cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateErrored
		return &DeviceAccessError{Device: c.cfg.DeviceID, Err: err}
	}
	c.stream = stream
	c.state = StateReady
	c.logger.Info("camera stream acquired", slog.String("device_id", c.cfg.DeviceID))
	return nil
}

// CaptureAndProcess grabs one frame, gates its quality, and routes it as a
// camera envelope. Valid only from ready; failure reverts to the error
// state without releasing the held stream.
func (c *Camera) CaptureAndProcess(ctx context.Context) (*input.Result, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, &StateError{Op: "capture", State: state}
	}
	c.state = StateCapturing
	stream := c.stream
	c.mu.Unlock()

	frame, err := stream.Grab(ctx)
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("grab frame: %w", err)
	}

	c.setState(StateProcessing)

	metrics, err := vision.AnalyzeBytes(frame)
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("analyze frame: %w", err)
	}

	env := &input.Envelope{
		ID:        uuid.NewString(),
		Channel:   input.ChannelCamera,
		Image:     &input.Binary{Data: frame, MIME: "image/png"},
		Timestamp: time.Now().UTC(),
		Metadata: map[string]string{
			"source":        "camera-capture",
			"device_id":     c.cfg.DeviceID,
			"quality_score": fmt.Sprintf("%.3f", metrics.QualityScore),
		},
	}
	if metrics.QualityScore < c.cfg.MinQualityScore {
		env.Metadata["quality_below_minimum"] = "true"
		c.logger.Warn("captured frame below quality minimum",
			slog.Float64("score", metrics.QualityScore),
			slog.Float64("minimum", c.cfg.MinQualityScore))
	}

	res := c.sink(ctx, env)
	c.setState(StateReady)
	return res, nil
}

// EnumerateDevices is a pure read with no state effect.
func (c *Camera) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	return c.provider.EnumerateDevices(ctx)
}

// Stop releases the stream unconditionally and returns to idle. Valid from
// any state.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.state = StateIdle
}

// Close is Stop; camera managers hold no other resources.
func (c *Camera) Close() {
	c.Stop()
}

func (c *Camera) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// fail transitions to error keeping the stream held; the caller decides
// whether to Stop and reacquire.
func (c *Camera) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateErrored
}

func (c *Camera) releaseLocked() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Stop(); err != nil {
		c.logger.Warn("failed to stop camera stream", slog.String("error", err.Error()))
	}
	c.stream = nil
}
