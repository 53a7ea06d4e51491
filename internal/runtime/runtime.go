package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/bus"
	"github.com/ablelabs/able-core/internal/capture"
	"github.com/ablelabs/able-core/internal/channel"
	"github.com/ablelabs/able-core/internal/config"
	"github.com/ablelabs/able-core/internal/devices"
	"github.com/ablelabs/able-core/internal/eventstore"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/natsserver"
	"github.com/ablelabs/able-core/internal/ocr"
	"github.com/ablelabs/able-core/internal/protocol"
	"github.com/ablelabs/able-core/internal/router"
	"github.com/ablelabs/able-core/internal/sign"
	"github.com/ablelabs/able-core/internal/stt"
	"github.com/ablelabs/able-core/internal/vision"
)

// Runtime assembles the daemon: telemetry, bus, event store, pipelines,
// recognizers, router, ingress and the optional capture managers.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	busClient *bus.Client
	routerSvc *router.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, blocks until the context is cancelled,
// then shuts down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		embedded.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to open event store: %w", err)
	}

	rt, err := r.buildRouter()
	if err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return err
	}

	routerSvc := router.NewService(ctx, rt, busClient, store, r.logger)
	if err := routerSvc.Start(); err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to start router service: %w", err)
	}
	r.routerSvc = routerSvc

	registry, err := devices.NewRegistry(ctx, r.cfg.Devices, busClient, r.logger)
	if err != nil {
		routerSvc.Close()
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to start device registry: %w", err)
	}

	camera, microphone := r.startCapture(ctx, rt, store, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	newIngress(rt, registry, metricsHandler, r.logger).routes(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if camera != nil {
		camera.Close()
	}
	if microphone != nil {
		microphone.Close()
	}
	registry.Close()
	routerSvc.Close()
	r.wg.Wait()
	if err := store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	busClient.Close()
	embedded.Shutdown()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

// Healthy aggregates component health for readiness probing.
func (r *Runtime) Healthy() bool {
	return r.ready.Load() && r.busClient.Healthy() && r.routerSvc.Healthy()
}

func (r *Runtime) buildRouter() (*router.Router, error) {
	audioPipe := audio.NewPipeline(r.cfg.Audio.TargetSampleRate)
	visionPipe := vision.NewPipeline()

	recognizer, err := stt.New(r.cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("failed to build stt recognizer: %w", err)
	}
	extractor, err := ocr.New(r.cfg.OCR)
	if err != nil {
		return nil, fmt.Errorf("failed to build ocr extractor: %w", err)
	}
	signRec, err := sign.New(r.cfg.Sign)
	if err != nil {
		return nil, fmt.Errorf("failed to build sign recognizer: %w", err)
	}

	all := []channel.Processor{
		channel.NewTextProcessor(),
		channel.NewVoiceProcessor(audioPipe, recognizer),
		channel.NewIconProcessor(),
		channel.NewSignProcessor(signRec),
		channel.NewCameraProcessor(visionPipe, extractor),
	}
	var enabled []channel.Processor
	for _, p := range all {
		if slices.Contains(r.cfg.Router.DisabledChannels, string(p.Channel())) {
			r.logger.Info("channel disabled by configuration", slog.String("channel", string(p.Channel())))
			continue
		}
		enabled = append(enabled, p)
	}

	cfg := router.Config{
		MinConfidence:     r.cfg.Router.MinConfidence,
		MaxProcessingTime: time.Duration(r.cfg.Router.MaxProcessingTimeMS) * time.Millisecond,
		AutoFallback:      r.cfg.Router.AutoFallback,
	}
	return router.New(cfg, r.logger, enabled...), nil
}

// startCapture brings up the configured capture managers against the
// synthetic providers and announces them to the registry.
func (r *Runtime) startCapture(ctx context.Context, rt *router.Router, store *eventstore.Store, registry *devices.Registry) (*capture.Camera, *capture.Microphone) {
	sink := r.captureSink(ctx, rt, store)

	var camera *capture.Camera
	if r.cfg.Capture.Camera.Enabled {
		cc := r.cfg.Capture.Camera
		camera = capture.NewCamera(&capture.SyntheticCamera{}, vision.NewPipeline(), sink, capture.StreamConfig{
			DeviceID:        cc.DeviceID,
			Facing:          cc.Facing,
			Width:           cc.Width,
			Height:          cc.Height,
			FrameRate:       cc.FrameRate,
			MinQualityScore: r.cfg.Vision.MinQualityScore,
		}, r.logger)
		if err := camera.Initialize(ctx); err != nil {
			r.logger.Error("camera initialization failed", slog.String("error", err.Error()))
		} else {
			r.announceDevice(registry, cc.DeviceID, "camera", "Capture Camera")
			if cc.IntervalMS > 0 {
				r.runCameraLoop(ctx, camera, time.Duration(cc.IntervalMS)*time.Millisecond)
			}
		}
	}

	var microphone *capture.Microphone
	if r.cfg.Capture.Microphone.Enabled {
		mc := r.cfg.Capture.Microphone
		microphone = capture.NewMicrophone(&capture.SyntheticMicrophone{}, audio.NewPipeline(r.cfg.Audio.TargetSampleRate), sink, capture.StreamConfig{
			DeviceID:         mc.DeviceID,
			SampleRate:       mc.SampleRate,
			Channels:         mc.Channels,
			EchoCancellation: mc.EchoCancellation,
			NoiseSuppression: mc.NoiseSuppression,
			AutoGainControl:  mc.AutoGainControl,
			MinQualityScore:  r.cfg.Audio.MinQualityScore,
		}, time.Duration(mc.MinDurationMS)*time.Millisecond, time.Duration(mc.MaxDurationMS)*time.Millisecond, r.logger)
		if err := microphone.Initialize(ctx); err != nil {
			r.logger.Error("microphone initialization failed", slog.String("error", err.Error()))
		} else {
			r.announceDevice(registry, mc.DeviceID, "microphone", "Capture Microphone")
		}
	}

	return camera, microphone
}

// captureSink routes a captured envelope and fans the result out the same
// way bus submissions go.
func (r *Runtime) captureSink(ctx context.Context, rt *router.Router, store *eventstore.Store) capture.Sink {
	return func(sinkCtx context.Context, env *input.Envelope) *input.Result {
		res := rt.Process(sinkCtx, env)

		if data, err := json.Marshal(res); err == nil {
			if err := r.busClient.Conn().Publish(protocol.SubjectInputResult, data); err != nil {
				r.logger.Warn("failed to publish capture result", slog.String("error", err.Error()))
			}
			if err := store.AppendInteraction(ctx, env.ID, string(env.Channel), "", "session"); err == nil {
				_ = store.AppendEvent(ctx, eventstore.Event{
					InteractionID: env.ID,
					Type:          "capture.completed",
					Payload:       data,
				})
			}
		}
		return res
	}
}

func (r *Runtime) runCameraLoop(ctx context.Context, camera *capture.Camera, interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := camera.CaptureAndProcess(ctx); err != nil {
					r.logger.Warn("periodic capture failed", slog.String("error", err.Error()))
					camera.Stop()
					if err := camera.Initialize(ctx); err != nil {
						r.logger.Error("camera reacquire failed", slog.String("error", err.Error()))
						return
					}
				}
			}
		}
	}()
}

func (r *Runtime) announceDevice(registry *devices.Registry, id, kind, label string) {
	if id == "" {
		id = fmt.Sprintf("%s-%s", r.cfg.RuntimeName, kind)
	}
	if err := registry.Announce(protocol.DeviceAnnounce{
		DeviceID:     id,
		Kind:         kind,
		Label:        label,
		Capabilities: []string{"capture"},
	}); err != nil {
		r.logger.Warn("failed to announce capture device", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
