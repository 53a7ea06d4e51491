package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Router.MinConfidence != 0.5 {
		t.Fatalf("expected default min confidence 0.5, got %v", cfg.Router.MinConfidence)
	}
	if !cfg.Router.AutoFallback {
		t.Fatal("expected auto fallback enabled by default")
	}
	if cfg.Audio.TargetSampleRate != 16000 {
		t.Fatalf("expected default target sample rate 16000, got %d", cfg.Audio.TargetSampleRate)
	}
	if cfg.Capture.Microphone.MinDurationMS != 500 || cfg.Capture.Microphone.MaxDurationMS != 30000 {
		t.Fatalf("unexpected microphone duration defaults: %+v", cfg.Capture.Microphone)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "able.yaml")
	data := []byte(`
runtime_name: test-runtime
router:
  min_confidence: 0.7
  max_processing_time_ms: 2500
  auto_fallback: false
  disabled_channels: [sign]
stt:
  mode: exec
  command: "whisper --stdin"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Router.MinConfidence != 0.7 || cfg.Router.MaxProcessingTimeMS != 2500 || cfg.Router.AutoFallback {
		t.Fatalf("unexpected router config: %+v", cfg.Router)
	}
	if len(cfg.Router.DisabledChannels) != 1 || cfg.Router.DisabledChannels[0] != "sign" {
		t.Fatalf("expected sign channel disabled, got %v", cfg.Router.DisabledChannels)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "whisper --stdin" {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ABLE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("ABLE_BUS_USERNAME", "alice")
	t.Setenv("ABLE_BUS_PASSWORD", "secret")
	t.Setenv("ABLE_BUS_TLS_INSECURE", "true")
	t.Setenv("ABLE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("ABLE_RUNTIME_NAME", "test-node")
	t.Setenv("ABLE_DEVICES_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("ABLE_DEVICES_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("ABLE_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("ABLE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("ABLE_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("ABLE_EVENT_STORE_MAX_INTERACTIONS", "123")
	t.Setenv("ABLE_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("ABLE_ROUTER_MIN_CONFIDENCE", "0.65")
	t.Setenv("ABLE_ROUTER_DISABLED_CHANNELS", "sign,camera")
	t.Setenv("ABLE_STT_MODE", "google")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.RuntimeName != "test-node" {
		t.Fatalf("expected runtime name override")
	}
	if cfg.Devices.HeartbeatInterval != 1500 {
		t.Fatalf("expected heartbeat interval override")
	}
	if cfg.Devices.HeartbeatTimeout != 5000 {
		t.Fatalf("expected heartbeat timeout override")
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxInteractions != 123 {
		t.Fatalf("expected event store max interactions override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Router.MinConfidence != 0.65 {
		t.Fatalf("expected min confidence override, got %v", cfg.Router.MinConfidence)
	}
	if len(cfg.Router.DisabledChannels) != 2 {
		t.Fatalf("expected disabled channels override, got %v", cfg.Router.DisabledChannels)
	}
	if cfg.STT.Mode != "google" {
		t.Fatalf("expected stt mode override, got %q", cfg.STT.Mode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad retention mode", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
		{"min confidence out of range", func(c *Config) { c.Router.MinConfidence = 1.5 }},
		{"zero processing time", func(c *Config) { c.Router.MaxProcessingTimeMS = 0 }},
		{"unknown disabled channel", func(c *Config) { c.Router.DisabledChannels = []string{"braille"} }},
		{"exec stt without command", func(c *Config) { c.STT.Mode = "exec"; c.STT.Command = "" }},
		{"heartbeat timeout below interval", func(c *Config) { c.Devices.HeartbeatTimeout = c.Devices.HeartbeatInterval }},
		{"mic max below min", func(c *Config) {
			c.Capture.Microphone.Enabled = true
			c.Capture.Microphone.MinDurationMS = 1000
			c.Capture.Microphone.MaxDurationMS = 500
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
