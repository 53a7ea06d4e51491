// Package router validates incoming envelopes, dispatches them to the
// matching channel processor, races the processor against a timeout and
// escalates to the channel's fallback when anything goes wrong. Every
// failure mode becomes a returned result; nothing propagates to the caller.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ablelabs/able-core/internal/channel"
	"github.com/ablelabs/able-core/internal/input"
)

// Config tunes routing behavior. All fields are mutable post-construction
// through SetConfig.
type Config struct {
	MinConfidence     float64
	MaxProcessingTime time.Duration
	AutoFallback      bool
}

// DefaultConfig returns the standard routing thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.5,
		MaxProcessingTime: 5 * time.Second,
		AutoFallback:      true,
	}
}

// Router owns the processor table and the dispatch policy.
type Router struct {
	mu         sync.RWMutex
	cfg        Config
	processors map[input.Channel]channel.Processor
	logger     *slog.Logger

	processedCtr  metric.Int64Counter
	fallbackCtr   metric.Int64Counter
	validationCtr metric.Int64Counter
	latencyHist   metric.Float64Histogram
}

// New builds a router with the given processors registered.
func New(cfg Config, logger *slog.Logger, processors ...channel.Processor) *Router {
	r := &Router{
		cfg:        cfg,
		processors: make(map[input.Channel]channel.Processor, len(processors)),
		logger:     logger.With(slog.String("component", "input-router")),
	}
	for _, p := range processors {
		r.processors[p.Channel()] = p
	}
	r.initMetrics()
	return r
}

func (r *Router) initMetrics() {
	meter := otel.Meter("github.com/ablelabs/able-core/router")
	var err error
	if r.processedCtr, err = meter.Int64Counter("able.router.processed",
		metric.WithDescription("Envelopes processed per channel")); err != nil {
		r.logger.Warn("failed to create processed counter", slog.String("error", err.Error()))
	}
	if r.fallbackCtr, err = meter.Int64Counter("able.router.fallbacks",
		metric.WithDescription("Fallback invocations per channel")); err != nil {
		r.logger.Warn("failed to create fallback counter", slog.String("error", err.Error()))
	}
	if r.validationCtr, err = meter.Int64Counter("able.router.validation_failures",
		metric.WithDescription("Structural validation failures")); err != nil {
		r.logger.Warn("failed to create validation counter", slog.String("error", err.Error()))
	}
	if r.latencyHist, err = meter.Float64Histogram("able.router.processing_ms",
		metric.WithDescription("End-to-end processing time per envelope")); err != nil {
		r.logger.Warn("failed to create latency histogram", slog.String("error", err.Error()))
	}
}

// Register installs or replaces the processor for its channel. Not safe to
// call concurrently with itself, but safe alongside Process.
func (r *Router) Register(p channel.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Channel()] = p
}

// Processor looks up the registered processor for a channel.
func (r *Router) Processor(ch input.Channel) (channel.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[ch]
	return p, ok
}

// Channels lists every channel with a registered processor, in dispatch
// order.
func (r *Router) Channels() []input.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]input.Channel, 0, len(r.processors))
	for _, ch := range input.Channels() {
		if _, ok := r.processors[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Config returns a copy of the current configuration.
func (r *Router) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfig replaces the routing configuration.
func (r *Router) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Validate reports whether the envelope passes structural validation.
func (r *Router) Validate(env *input.Envelope) bool {
	return input.Validate(env)
}

// ValidateDetailed returns every structural problem found.
func (r *Router) ValidateDetailed(env *input.Envelope) []string {
	return input.ValidateDetailed(env)
}

type outcome struct {
	res *input.Result
	err error
}

// Process routes one envelope. It never panics and never returns nil: every
// failure mode becomes a zero-confidence result carrying an error list.
func (r *Router) Process(ctx context.Context, env *input.Envelope) *input.Result {
	start := time.Now()
	cfg := r.Config()

	if problems := input.ValidateDetailed(env); len(problems) > 0 {
		if r.validationCtr != nil {
			r.validationCtr.Add(ctx, 1, metric.WithAttributes(channelAttr(env)))
		}
		res := input.NewResult(env, "input-router")
		res.Errors = append(res.Errors, problems...)
		return r.finish(ctx, env, res, start)
	}

	proc, ok := r.Processor(env.Channel)
	if !ok {
		res := input.NewResult(env, "input-router")
		res.AddError((&UnsupportedChannelError{Channel: env.Channel}).Error())
		return r.finish(ctx, env, res, start)
	}

	if !proc.Validate(env) {
		if !cfg.AutoFallback {
			res := input.NewResult(env, "input-router")
			res.AddError((&ChannelValidationError{Channel: env.Channel}).Error())
			return r.finish(ctx, env, res, start)
		}
		return r.finish(ctx, env, r.Fallback(env), start)
	}

	res, err := r.race(ctx, cfg, proc, env)
	if err != nil {
		r.logger.Warn("processor failed",
			slog.String("channel", string(env.Channel)),
			slog.String("error", err.Error()))
		if !cfg.AutoFallback {
			failed := input.NewResult(env, string(env.Channel))
			failed.AddError(err.Error())
			return r.finish(ctx, env, failed, start)
		}
		fb := r.Fallback(env)
		return r.finish(ctx, env, fb, start)
	}

	if res.Confidence < cfg.MinConfidence {
		res.AddWarning(fmt.Sprintf("confidence %.2f below threshold %.2f", res.Confidence, cfg.MinConfidence))
	}
	return r.finish(ctx, env, res, start)
}

// race runs the processor against the configured deadline, first settle
// wins. The loser keeps running in the background; its outcome lands in the
// orphaned buffered channel and cannot touch the returned result.
func (r *Router) race(ctx context.Context, cfg Config, proc channel.Processor, env *input.Envelope) (*input.Result, error) {
	pctx, cancel := context.WithTimeout(ctx, cfg.MaxProcessingTime)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: &ProcessingError{Channel: env.Channel, Err: fmt.Errorf("panic: %v", rec)}}
			}
		}()
		res, err := proc.Process(pctx, env)
		if err != nil {
			done <- outcome{err: &ProcessingError{Channel: env.Channel, Err: err}}
			return
		}
		if res == nil {
			done <- outcome{err: &ProcessingError{Channel: env.Channel, Err: fmt.Errorf("processor returned no result")}}
			return
		}
		done <- outcome{res: res}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return nil, &ProcessingError{Channel: env.Channel, Err: ctx.Err()}
		}
		return nil, &TimeoutError{Limit: cfg.MaxProcessingTime}
	}
}

// Fallback resolves the channel's processor and invokes its degraded path.
// A fallback that panics or returns nothing is exhausted; the caller still
// gets a complete zero-confidence result.
func (r *Router) Fallback(env *input.Envelope) *input.Result {
	if r.fallbackCtr != nil {
		r.fallbackCtr.Add(context.Background(), 1, metric.WithAttributes(channelAttr(env)))
	}

	proc, ok := r.Processor(env.Channel)
	if !ok {
		res := input.NewResult(env, "input-router")
		res.AddError((&UnsupportedChannelError{Channel: env.Channel}).Error())
		return res
	}

	res := r.safeFallback(proc, env)
	res.AddWarning("fallback used")
	return res
}

func (r *Router) safeFallback(proc channel.Processor, env *input.Envelope) (res *input.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			fbErr := &FallbackError{Channel: env.Channel, Err: fmt.Errorf("panic: %v", rec)}
			res = input.NewResult(env, string(env.Channel))
			res.AddError(fbErr.Error())
			res.AddError("fallback exhausted; no further degradation available")
		}
	}()
	res = proc.Fallback(env)
	if res == nil {
		fbErr := &FallbackError{Channel: env.Channel, Err: fmt.Errorf("fallback returned no result")}
		res = input.NewResult(env, string(env.Channel))
		res.AddError(fbErr.Error())
		res.AddError("fallback exhausted; no further degradation available")
	}
	return res
}

// finish stamps timing, clamps confidence and records metrics.
func (r *Router) finish(ctx context.Context, env *input.Envelope, res *input.Result, start time.Time) *input.Result {
	if res.Confidence < 0 {
		res.Confidence = 0
	} else if res.Confidence > 1 {
		res.Confidence = 1
	}
	res.ProcessingMS = time.Since(start).Milliseconds()
	if r.processedCtr != nil {
		r.processedCtr.Add(ctx, 1, metric.WithAttributes(channelAttr(env)))
	}
	if r.latencyHist != nil {
		r.latencyHist.Record(ctx, float64(res.ProcessingMS), metric.WithAttributes(channelAttr(env)))
	}
	return res
}

func channelAttr(env *input.Envelope) attribute.KeyValue {
	ch := "unknown"
	if env != nil && env.Channel != "" {
		ch = string(env.Channel)
	}
	return attribute.String("channel", ch)
}
