package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/vision"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingSink remembers every envelope it was handed.
type recordingSink struct {
	mu        sync.Mutex
	envelopes []*input.Envelope
}

func (s *recordingSink) sink(_ context.Context, env *input.Envelope) *input.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
	res := input.NewResult(env, "test-sink")
	res.Content = "ok"
	res.Confidence = 1
	return res
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envelopes)
}

func (s *recordingSink) last() *input.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.envelopes) == 0 {
		return nil
	}
	return s.envelopes[len(s.envelopes)-1]
}

type deniedCameraProvider struct{}

func (deniedCameraProvider) RequestAccess(context.Context, StreamConfig) (FrameStream, error) {
	return nil, errors.New("permission denied")
}
func (deniedCameraProvider) EnumerateDevices(context.Context) ([]DeviceInfo, error) {
	return nil, nil
}

func TestCameraLifecycle(t *testing.T) {
	sink := &recordingSink{}
	cam := NewCamera(&SyntheticCamera{}, vision.NewPipeline(), sink.sink, StreamConfig{DeviceID: "cam-0", Width: 64, Height: 64}, testLogger())

	if cam.State() != StateIdle {
		t.Fatalf("expected idle, got %s", cam.State())
	}
	if err := cam.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if cam.State() != StateReady {
		t.Fatalf("expected ready, got %s", cam.State())
	}
	// Re-initializing with a held stream is a no-op.
	if err := cam.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	res, err := cam.CaptureAndProcess(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res == nil || res.Content != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if cam.State() != StateReady {
		t.Fatalf("expected ready after capture, got %s", cam.State())
	}
	env := sink.last()
	if env == nil || env.Channel != input.ChannelCamera || env.Image == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Metadata["quality_score"] == "" {
		t.Fatal("expected quality score metadata")
	}

	cam.Stop()
	if cam.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %s", cam.State())
	}
}

func TestCameraCaptureRequiresReady(t *testing.T) {
	cam := NewCamera(&SyntheticCamera{}, vision.NewPipeline(), (&recordingSink{}).sink, StreamConfig{}, testLogger())

	_, err := cam.CaptureAndProcess(context.Background())
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from idle, got %v", err)
	}
}

func TestCameraAccessDenied(t *testing.T) {
	cam := NewCamera(deniedCameraProvider{}, vision.NewPipeline(), (&recordingSink{}).sink, StreamConfig{DeviceID: "cam-0"}, testLogger())

	err := cam.Initialize(context.Background())
	var accessErr *DeviceAccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected DeviceAccessError, got %v", err)
	}
	if cam.State() != StateErrored {
		t.Fatalf("expected error state, got %s", cam.State())
	}
}

func newTestMicrophone(sink Sink, minDur, maxDur time.Duration) *Microphone {
	return NewMicrophone(
		&SyntheticMicrophone{ChunkMS: 10},
		audio.NewPipeline(16000),
		sink,
		StreamConfig{DeviceID: "mic-0", SampleRate: 16000, Channels: 1},
		minDur, maxDur,
		testLogger(),
	)
}

func TestMicrophoneRecordingFlow(t *testing.T) {
	sink := &recordingSink{}
	mic := newTestMicrophone(sink.sink, 50*time.Millisecond, 10*time.Second)

	if err := mic.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mic.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if mic.State() != StateRecording {
		t.Fatalf("expected recording, got %s", mic.State())
	}

	time.Sleep(150 * time.Millisecond)

	res, err := mic.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	if res == nil || res.Content != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if mic.State() != StateReady {
		t.Fatalf("expected ready after stop, got %s", mic.State())
	}

	env := sink.last()
	if env == nil || env.Channel != input.ChannelVoice || env.Audio == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Audio.MIME != "audio/wav" || len(env.Audio.Data) == 0 {
		t.Fatalf("expected wav payload, got %+v", env.Audio)
	}
}

func TestMicrophoneRejectsShortRecording(t *testing.T) {
	sink := &recordingSink{}
	mic := newTestMicrophone(sink.sink, 500*time.Millisecond, 10*time.Second)

	if err := mic.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mic.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording: %v", err)
	}

	_, err := mic.StopRecording(context.Background())
	var minErr *MinDurationError
	if !errors.As(err, &minErr) {
		t.Fatalf("expected MinDurationError, got %v", err)
	}
	if mic.State() != StateIdle {
		t.Fatalf("short recording must release the stream, got %s", mic.State())
	}
	if sink.count() != 0 {
		t.Fatal("short recording must not reach the sink")
	}
}

func TestMicrophonePauseResume(t *testing.T) {
	sink := &recordingSink{}
	mic := newTestMicrophone(sink.sink, 50*time.Millisecond, 10*time.Second)

	if err := mic.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mic.Pause(); err == nil {
		t.Fatal("pause outside recording must fail")
	}
	if err := mic.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if err := mic.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if mic.State() != StatePaused {
		t.Fatalf("expected paused, got %s", mic.State())
	}
	if err := mic.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if mic.State() != StateRecording {
		t.Fatalf("expected recording, got %s", mic.State())
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := mic.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
}

func TestMicrophoneAutoStop(t *testing.T) {
	sink := &recordingSink{}
	mic := newTestMicrophone(sink.sink, 20*time.Millisecond, 100*time.Millisecond)

	if err := mic.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mic.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mic.State() != StateReady {
		if time.Now().After(deadline) {
			t.Fatalf("auto-stop never fired, state %s", mic.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	env := sink.last()
	if env == nil {
		t.Fatal("expected envelope from auto-stop")
	}
	if env.Metadata["auto_stopped"] != "true" {
		t.Fatalf("expected auto_stopped tag, got %+v", env.Metadata)
	}
}

func TestMicrophoneStartRequiresReady(t *testing.T) {
	mic := newTestMicrophone((&recordingSink{}).sink, 50*time.Millisecond, time.Second)

	err := mic.StartRecording(context.Background())
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from idle, got %v", err)
	}
}
