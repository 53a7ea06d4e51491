// Package devices tracks capture devices across the fleet. Devices announce
// themselves over the bus and stay visible while their heartbeats keep
// arriving; stale entries are marked offline after the configured timeout.
package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ablelabs/able-core/internal/bus"
	"github.com/ablelabs/able-core/internal/config"
	"github.com/ablelabs/able-core/internal/protocol"
)

// Device is a registry entry.
type Device struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Label        string    `json:"label,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	Online       bool      `json:"online"`
}

// Registry maintains the device table and heartbeats for locally owned
// devices.
type Registry struct {
	cfg       config.DevicesConfig
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	devices   map[string]*Device
	local     []protocol.DeviceAnnounce
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

// NewRegistry subscribes to device presence subjects and starts the
// heartbeat and expiry loops.
func NewRegistry(ctx context.Context, cfg config.DevicesConfig, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:     cfg,
		log:     log.With(slog.String("component", "device-registry")),
		bus:     busClient,
		devices: make(map[string]*Device),
		meter:   otel.Meter("github.com/ablelabs/able-core/devices"),
		cancel:  cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorExpiry(ctx)

	return r, nil
}

// Close stops the loops and drains the subscriptions.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

// Announce registers a locally owned device and advertises it on the bus.
// The registry heartbeats for it from then on.
func (r *Registry) Announce(device protocol.DeviceAnnounce) error {
	device.Timestamp = time.Now().UTC()
	r.mu.Lock()
	r.local = append(r.local, device)
	r.mu.Unlock()

	payload, err := json.Marshal(device)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish(protocol.SubjectDeviceAnnounce, payload); err != nil {
		return err
	}
	r.update(device.DeviceID, device.Kind, device.Label, device.Capabilities, device.Timestamp)
	return nil
}

// Snapshot returns a copy of every known device.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectDeviceAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectDeviceHeartbeatPrefix+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			r.publishHeartbeats()
		}
	}
}

func (r *Registry) publishHeartbeats() {
	r.mu.RLock()
	local := append([]protocol.DeviceAnnounce(nil), r.local...)
	r.mu.RUnlock()

	for _, device := range local {
		hb := protocol.DeviceHeartbeat{DeviceID: device.DeviceID, Timestamp: time.Now().UTC()}
		payload, err := json.Marshal(hb)
		if err != nil {
			continue
		}
		subject := fmt.Sprintf("%s.%s", protocol.SubjectDeviceHeartbeatPrefix, device.DeviceID)
		if err := r.bus.Conn().Publish(subject, payload); err != nil {
			r.log.Warn("failed to publish device heartbeat", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) monitorExpiry(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expireStale()
		}
	}
}

func (r *Registry) expireStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, device := range r.devices {
		if now.Sub(device.LastSeen) > timeout {
			device.Online = false
		}
	}
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announce protocol.DeviceAnnounce
	if err := json.Unmarshal(msg.Data, &announce); err != nil {
		r.log.Warn("invalid device announce", slog.String("error", err.Error()))
		return
	}
	if announce.Timestamp.IsZero() {
		announce.Timestamp = time.Now().UTC()
	}
	r.update(announce.DeviceID, announce.Kind, announce.Label, announce.Capabilities, announce.Timestamp)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.DeviceHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid device heartbeat", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.update(hb.DeviceID, "", "", nil, hb.Timestamp)
}

func (r *Registry) update(id, kind, label string, capabilities []string, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		device = &Device{ID: id}
		r.devices[id] = device
	}
	if kind != "" {
		device.Kind = kind
	}
	if label != "" {
		device.Label = label
	}
	if len(capabilities) > 0 {
		device.Capabilities = capabilities
	}
	device.LastSeen = timestamp
	device.Online = true
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	gauge, err := r.meter.Int64ObservableGauge("able.devices.online",
		metric.WithDescription("Online capture devices per kind"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for kind, count := range r.onlineByKind() {
			obs.ObserveInt64(gauge, count, metric.WithAttributes(attribute.String("kind", kind)))
		}
		return nil
	}, gauge)
	return err
}

func (r *Registry) onlineByKind() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, device := range r.devices {
		if device.Online {
			counts[device.Kind]++
		}
	}
	return counts
}
