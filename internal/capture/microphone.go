package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/input"
)

const (
	defaultMinRecording = 500 * time.Millisecond
	defaultMaxRecording = 30 * time.Second
	pauseIdleWait       = 20 * time.Millisecond
)

// Microphone drives a PCM stream through the capture state machine,
// accumulating chunks between StartRecording and StopRecording. Recordings
// shorter than the minimum are rejected; a timer auto-stops recordings that
// reach the maximum.
type Microphone struct {
	mu       sync.Mutex
	state    State
	provider AudioProvider
	stream   PCMStream
	pipeline *audio.Pipeline
	sink     Sink
	cfg      StreamConfig
	minDur   time.Duration
	maxDur   time.Duration
	logger   *slog.Logger

	buf         []byte
	recordStart time.Time
	loopCancel  context.CancelFunc
	loopWG      sync.WaitGroup
	autoStop    *time.Timer
}

// NewMicrophone builds an idle microphone manager. Zero durations take the
// defaults of 500ms minimum and 30s maximum.
func NewMicrophone(provider AudioProvider, pipeline *audio.Pipeline, sink Sink, cfg StreamConfig, minDur, maxDur time.Duration, logger *slog.Logger) *Microphone {
	if minDur <= 0 {
		minDur = defaultMinRecording
	}
	if maxDur <= 0 {
		maxDur = defaultMaxRecording
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultTargetRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Microphone{
		state:    StateIdle,
		provider: provider,
		pipeline: pipeline,
		sink:     sink,
		cfg:      cfg,
		minDur:   minDur,
		maxDur:   maxDur,
		logger:   logger.With(slog.String("component", "microphone-capture")),
	}
}

// State returns the current machine state.
func (m *Microphone) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize acquires the microphone stream. It is idempotent while a
// stream is already held. Access failure transitions to the error state;
// there is no automatic retry.
func (m *Microphone) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.stream != nil {
		m.mu.Unlock()
		return nil
	}
	m.state = StateRequesting
	m.mu.Unlock()

	stream, err := m.provider.RequestAccess(ctx, m.cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateErrored
		return &DeviceAccessError{Device: m.cfg.DeviceID, Err: err}
	}
	m.stream = stream
	m.state = StateReady
	m.logger.Info("microphone stream acquired", slog.String("device_id", m.cfg.DeviceID))
	return nil
}

// StartRecording begins accumulating PCM chunks. Valid only from ready.
func (m *Microphone) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return &StateError{Op: "start recording", State: m.state}
	}
	m.state = StateRecording
	m.buf = nil
	m.recordStart = time.Now()

	loopCtx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	m.loopWG.Add(1)
	go m.recordLoop(loopCtx)

	m.autoStop = time.AfterFunc(m.maxDur, func() {
		res, err := m.finalize(context.Background(), true)
		if err != nil {
			m.logger.Warn("auto-stop failed", slog.String("error", err.Error()))
			return
		}
		m.logger.Info("recording auto-stopped at maximum duration",
			slog.Float64("confidence", res.Confidence))
	})
	return nil
}

func (m *Microphone) recordLoop(ctx context.Context) {
	defer m.loopWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		state := m.state
		stream := m.stream
		m.mu.Unlock()
		if state == StatePaused {
			time.Sleep(pauseIdleWait)
			continue
		}
		if state != StateRecording || stream == nil {
			return
		}

		chunk, err := stream.Chunk(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("microphone chunk failed", slog.String("error", err.Error()))
			}
			return
		}
		m.mu.Lock()
		m.buf = append(m.buf, chunk...)
		m.mu.Unlock()
	}
}

// Pause suspends accumulation without releasing the stream.
func (m *Microphone) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return &StateError{Op: "pause", State: m.state}
	}
	m.state = StatePaused
	return nil
}

// Resume continues a paused recording.
func (m *Microphone) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePaused {
		return &StateError{Op: "resume", State: m.state}
	}
	m.state = StateRecording
	return nil
}

// StopRecording finalizes the recording: too short and the stream is
// released with a MinDurationError; otherwise the buffer is encoded, quality
// gated and routed as a voice envelope.
func (m *Microphone) StopRecording(ctx context.Context) (*input.Result, error) {
	return m.finalize(ctx, false)
}

func (m *Microphone) finalize(ctx context.Context, auto bool) (*input.Result, error) {
	m.mu.Lock()
	if m.state != StateRecording && m.state != StatePaused {
		state := m.state
		m.mu.Unlock()
		return nil, &StateError{Op: "stop recording", State: state}
	}
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
	if m.autoStop != nil {
		m.autoStop.Stop()
		m.autoStop = nil
	}
	elapsed := time.Since(m.recordStart)
	m.state = StateProcessing
	m.mu.Unlock()

	m.loopWG.Wait()

	if elapsed < m.minDur {
		m.mu.Lock()
		m.releaseLocked()
		m.state = StateIdle
		m.mu.Unlock()
		return nil, &MinDurationError{Min: m.minDur, Actual: elapsed}
	}

	m.mu.Lock()
	pcm := m.buf
	m.buf = nil
	m.mu.Unlock()

	wavBytes, err := audio.EncodePCM16(pcm, m.cfg.SampleRate, m.cfg.Channels)
	if err != nil {
		m.fail()
		return nil, fmt.Errorf("encode recording: %w", err)
	}
	report := audio.ValidateQuality(audio.SamplesFromPCM16(pcm), m.cfg.SampleRate, m.cfg.MinQualityScore)

	env := &input.Envelope{
		ID:      uuid.NewString(),
		Channel: input.ChannelVoice,
		Audio: &input.Binary{
			Data:       wavBytes,
			MIME:       "audio/wav",
			SampleRate: m.cfg.SampleRate,
			Channels:   m.cfg.Channels,
		},
		Timestamp: time.Now().UTC(),
		Metadata: map[string]string{
			"source":        "microphone-capture",
			"device_id":     m.cfg.DeviceID,
			"quality_score": fmt.Sprintf("%.3f", report.Metrics.QualityScore),
		},
	}
	if auto {
		env.Metadata["auto_stopped"] = "true"
	}
	if !report.Valid {
		env.Metadata["quality_below_minimum"] = "true"
		m.logger.Warn("recording below quality minimum",
			slog.Float64("score", report.Metrics.QualityScore),
			slog.Float64("minimum", m.cfg.MinQualityScore))
	}

	res := m.sink(ctx, env)
	m.setState(StateReady)
	return res, nil
}

// EnumerateDevices is a pure read with no state effect.
func (m *Microphone) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	return m.provider.EnumerateDevices(ctx)
}

// Stop releases the stream unconditionally and returns to idle. Valid from
// any state.
func (m *Microphone) Stop() {
	m.mu.Lock()
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
	if m.autoStop != nil {
		m.autoStop.Stop()
		m.autoStop = nil
	}
	m.releaseLocked()
	m.state = StateIdle
	m.mu.Unlock()
	m.loopWG.Wait()
}

// Close is Stop; microphone managers hold no other resources.
func (m *Microphone) Close() {
	m.Stop()
}

func (m *Microphone) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Microphone) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateErrored
}

func (m *Microphone) releaseLocked() {
	if m.stream == nil {
		return
	}
	if err := m.stream.Stop(); err != nil {
		m.logger.Warn("failed to stop microphone stream", slog.String("error", err.Error()))
	}
	m.stream = nil
}
