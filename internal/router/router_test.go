package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ablelabs/able-core/internal/channel"
	"github.com/ablelabs/able-core/internal/input"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubProcessor is a configurable text-channel processor for routing tests.
type stubProcessor struct {
	ch          input.Channel
	valid       bool
	delay       time.Duration
	processErr  error
	confidence  float64
	panics      bool
	fbPanics    bool
	fbNil       bool
	fallbackRun bool
}

var _ channel.Processor = (*stubProcessor)(nil)

func (s *stubProcessor) Channel() input.Channel        { return s.ch }
func (s *stubProcessor) Validate(*input.Envelope) bool { return s.valid }

func (s *stubProcessor) Process(ctx context.Context, env *input.Envelope) (*input.Result, error) {
	if s.panics {
		panic("stub exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	if s.processErr != nil {
		return nil, s.processErr
	}
	res := input.NewResult(env, "stub")
	res.Content = "processed"
	res.Confidence = s.confidence
	return res, nil
}
func (s *stubProcessor) Fallback(env *input.Envelope) *input.Result {
	s.fallbackRun = true
	if s.fbPanics {
		panic("fallback exploded")
	}
	if s.fbNil {
		return nil
	}
	res := input.NewResult(env, "stub")
	res.Content = "degraded"
	res.Confidence = 0.3
	return res
}

func textEnvelope() *input.Envelope {
	return &input.Envelope{
		ID:        "env-1",
		Channel:   input.ChannelText,
		Text:      "hello",
		Timestamp: time.Now().UTC(),
	}
}

func hasWarningContaining(res *input.Result, substr string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func hasErrorContaining(res *input.Result, substr string) bool {
	for _, e := range res.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestProcessHappyPath(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, confidence: 0.9}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if res == nil {
		t.Fatal("process must never return nil")
	}
	if res.Content != "processed" || res.Confidence != 0.9 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", res)
	}
}

func TestProcessStructuralFailure(t *testing.T) {
	r := New(DefaultConfig(), testLogger())

	res := r.Process(context.Background(), &input.Envelope{Channel: "unknown"})
	if res.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", res.Confidence)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected validation errors listed")
	}

	res = r.Process(context.Background(), nil)
	if res == nil || len(res.Errors) == 0 {
		t.Fatal("nil envelope must yield an error result")
	}
}

func TestProcessUnregisteredChannel(t *testing.T) {
	r := New(DefaultConfig(), testLogger())

	res := r.Process(context.Background(), textEnvelope())
	if !hasErrorContaining(res, "no processor registered") {
		t.Fatalf("expected unsupported channel error, got %+v", res.Errors)
	}
}

func TestProcessChannelValidationFallsBack(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: false}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if res.Content != "degraded" {
		t.Fatalf("expected fallback content, got %+v", res)
	}
	if !hasWarningContaining(res, "fallback used") {
		t.Fatalf("expected fallback warning, got %v", res.Warnings)
	}
}

func TestProcessChannelValidationWithoutAutoFallback(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: false}
	cfg := DefaultConfig()
	cfg.AutoFallback = false
	r := New(cfg, testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if stub.fallbackRun {
		t.Fatal("fallback must not run when auto fallback is off")
	}
	if !hasErrorContaining(res, "channel validation") {
		t.Fatalf("expected channel validation error, got %+v", res.Errors)
	}
}

func TestProcessTimeoutTriggersFallback(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, delay: 500 * time.Millisecond, confidence: 0.9}
	cfg := DefaultConfig()
	cfg.MaxProcessingTime = 50 * time.Millisecond
	r := New(cfg, testLogger(), stub)

	start := time.Now()
	res := r.Process(context.Background(), textEnvelope())
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("timeout not honored, took %v", elapsed)
	}
	if res.Content != "degraded" || !hasWarningContaining(res, "fallback used") {
		t.Fatalf("expected fallback after timeout, got %+v", res)
	}
}

func TestProcessErrorTriggersFallback(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, processErr: errors.New("backend down")}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if res.Content != "degraded" {
		t.Fatalf("expected fallback content, got %+v", res)
	}
}

func TestProcessPanicRecovered(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, panics: true}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if res == nil {
		t.Fatal("panic must not escape Process")
	}
	if res.Content != "degraded" {
		t.Fatalf("expected fallback after panic, got %+v", res)
	}
}

func TestFallbackExhausted(t *testing.T) {
	for _, stub := range []*stubProcessor{
		{ch: input.ChannelText, valid: true, processErr: errors.New("down"), fbPanics: true},
		{ch: input.ChannelText, valid: true, processErr: errors.New("down"), fbNil: true},
	} {
		r := New(DefaultConfig(), testLogger(), stub)
		res := r.Process(context.Background(), textEnvelope())
		if res == nil {
			t.Fatal("exhausted fallback must still yield a result")
		}
		if res.Confidence != 0 {
			t.Fatalf("expected zero confidence, got %v", res.Confidence)
		}
		if !hasErrorContaining(res, "fallback exhausted") {
			t.Fatalf("expected exhaustion error, got %+v", res.Errors)
		}
	}
}

func TestLowConfidenceWarning(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, confidence: 0.2}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if !hasWarningContaining(res, "below threshold") {
		t.Fatalf("expected low-confidence warning, got %v", res.Warnings)
	}
	if res.Content != "processed" {
		t.Fatalf("low confidence must not discard the result: %+v", res)
	}
}

func TestConfidenceClamped(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, confidence: 1.7}
	r := New(DefaultConfig(), testLogger(), stub)

	res := r.Process(context.Background(), textEnvelope())
	if res.Confidence != 1.0 {
		t.Fatalf("expected clamped confidence, got %v", res.Confidence)
	}
}

func TestRegisterReplacesProcessor(t *testing.T) {
	first := &stubProcessor{ch: input.ChannelText, valid: true, confidence: 0.9}
	r := New(DefaultConfig(), testLogger(), first)

	replacement := &stubProcessor{ch: input.ChannelText, valid: false}
	r.Register(replacement)

	res := r.Process(context.Background(), textEnvelope())
	if res.Content != "degraded" {
		t.Fatalf("expected replacement processor used, got %+v", res)
	}
}

func TestSetConfigTakesEffect(t *testing.T) {
	stub := &stubProcessor{ch: input.ChannelText, valid: true, confidence: 0.6}
	r := New(DefaultConfig(), testLogger(), stub)

	cfg := r.Config()
	cfg.MinConfidence = 0.9
	r.SetConfig(cfg)

	res := r.Process(context.Background(), textEnvelope())
	if !hasWarningContaining(res, "below threshold") {
		t.Fatalf("expected raised threshold applied, got %v", res.Warnings)
	}
}
