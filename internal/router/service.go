package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ablelabs/able-core/internal/bus"
	"github.com/ablelabs/able-core/internal/eventstore"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/protocol"
)

// Service exposes the router over the bus: envelopes in on
// input.envelope, results out on input.result and on the reply subject
// when one is set. Every interaction lands in the event store.
type Service struct {
	router *Router
	bus    *bus.Client
	store  *eventstore.Store
	logger *slog.Logger
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the router to the bus and event store.
func NewService(parent context.Context, r *Router, busClient *bus.Client, store *eventstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		router: r,
		bus:    busClient,
		store:  store,
		logger: logger.With(slog.String("component", "router-service")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to envelope submissions.
func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectInputEnvelope, s.handleEnvelope)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Close drains the subscription and waits for in-flight envelopes.
func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

// Healthy reports whether the subscription is live.
func (s *Service) Healthy() bool {
	return s.sub != nil
}

func (s *Service) handleEnvelope(msg *nats.Msg) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(msg)
	}()
}

func (s *Service) process(msg *nats.Msg) {
	var env input.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("failed to decode envelope", slogError(err))
		res := &input.Result{
			Content:   "",
			Errors:    []string{"malformed envelope: " + err.Error()},
			Timestamp: time.Now().UTC(),
		}
		s.respond(msg, res)
		return
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}

	s.appendEvent(env.ID, string(env.Channel), "envelope.received", nil)

	res := s.router.Process(s.ctx, &env)

	s.recordOutcome(&env, res)
	s.respond(msg, res)
	s.publishResult(res)
}

func (s *Service) respond(msg *nats.Msg, res *input.Result) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to encode result", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply with result", slogError(err))
	}
}

func (s *Service) publishResult(res *input.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to encode result", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectInputResult, data); err != nil {
		s.logger.Warn("failed to publish result", slogError(err))
	}
}

func (s *Service) recordOutcome(env *input.Envelope, res *input.Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		payload = nil
	}
	switch {
	case len(res.Errors) > 0 && res.Confidence == 0 && res.Content == "":
		s.appendEvent(env.ID, string(env.Channel), "validation.failed", payload)
	case hasWarning(res, "fallback used"):
		s.appendEvent(env.ID, string(env.Channel), "fallback.used", payload)
	default:
		s.appendEvent(env.ID, string(env.Channel), "result.returned", payload)
	}
}

func (s *Service) appendEvent(interactionID, channelName, eventType string, payload []byte) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendInteraction(s.ctx, interactionID, channelName, "", "session"); err != nil {
		s.logger.Warn("failed to record interaction", slogError(err))
		return
	}
	evt := eventstore.Event{InteractionID: interactionID, Type: eventType, Payload: payload}
	if err := s.store.AppendEvent(s.ctx, evt); err != nil {
		s.logger.Warn("failed to record event", slogError(err))
	}
}

func hasWarning(res *input.Result, warning string) bool {
	for _, w := range res.Warnings {
		if w == warning {
			return true
		}
	}
	return false
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
