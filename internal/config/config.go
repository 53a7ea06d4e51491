package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path            string `yaml:"path"`
	RetentionMode   string `yaml:"retention_mode"`
	RetentionDays   int    `yaml:"retention_days"`
	MaxInteractions int    `yaml:"max_interactions"`
	VacuumOnStart   bool   `yaml:"vacuum_on_start"`
}

type DevicesConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout_ms"`
}

type RouterConfig struct {
	MinConfidence       float64  `yaml:"min_confidence"`
	MaxProcessingTimeMS int      `yaml:"max_processing_time_ms"`
	AutoFallback        bool     `yaml:"auto_fallback"`
	DisabledChannels    []string `yaml:"disabled_channels"`
}

type AudioConfig struct {
	TargetSampleRate int     `yaml:"target_sample_rate"`
	MinQualityScore  float64 `yaml:"min_quality_score"`
}

type VisionConfig struct {
	MinQualityScore float64 `yaml:"min_quality_score"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, google
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type OCRConfig struct {
	Mode     string `yaml:"mode"` // mock, exec
	Command  string `yaml:"command"`
	Language string `yaml:"language"`
}

type SignConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
}

type CameraCaptureConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DeviceID   string `yaml:"device_id"`
	Facing     string `yaml:"facing"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FrameRate  int    `yaml:"frame_rate"`
	IntervalMS int    `yaml:"interval_ms"`
}

type MicrophoneCaptureConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DeviceID         string `yaml:"device_id"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	MinDurationMS    int    `yaml:"min_duration_ms"`
	MaxDurationMS    int    `yaml:"max_duration_ms"`
	EchoCancellation bool   `yaml:"echo_cancellation"`
	NoiseSuppression bool   `yaml:"noise_suppression"`
	AutoGainControl  bool   `yaml:"auto_gain_control"`
}

type CaptureConfig struct {
	Camera     CameraCaptureConfig     `yaml:"camera"`
	Microphone MicrophoneCaptureConfig `yaml:"microphone"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Devices     DevicesConfig    `yaml:"devices"`
	Router      RouterConfig     `yaml:"router"`
	Audio       AudioConfig      `yaml:"audio"`
	Vision      VisionConfig     `yaml:"vision"`
	STT         STTConfig        `yaml:"stt"`
	OCR         OCRConfig        `yaml:"ocr"`
	Sign        SignConfig       `yaml:"sign"`
	Capture     CaptureConfig    `yaml:"capture"`
}

func Default() Config {
	return Config{
		RuntimeName: "able-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:            "./data/able-events.db",
			RetentionMode:   "session",
			RetentionDays:   30,
			MaxInteractions: 10000,
		},
		Devices: DevicesConfig{
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Router: RouterConfig{
			MinConfidence:       0.5,
			MaxProcessingTimeMS: 5000,
			AutoFallback:        true,
		},
		Audio: AudioConfig{
			TargetSampleRate: 16000,
			MinQualityScore:  0.5,
		},
		Vision: VisionConfig{
			MinQualityScore: 0.5,
		},
		STT:  STTConfig{Mode: "mock"},
		OCR:  OCRConfig{Mode: "mock"},
		Sign: SignConfig{Mode: "mock"},
		Capture: CaptureConfig{
			Camera: CameraCaptureConfig{
				Enabled:   false,
				Width:     640,
				Height:    480,
				FrameRate: 30,
			},
			Microphone: MicrophoneCaptureConfig{
				Enabled:          false,
				SampleRate:       16000,
				Channels:         1,
				MinDurationMS:    500,
				MaxDurationMS:    30000,
				EchoCancellation: true,
				NoiseSuppression: true,
				AutoGainControl:  true,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ABLE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ABLE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ABLE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ABLE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ABLE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ABLE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ABLE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "ABLE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ABLE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "ABLE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "ABLE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ABLE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ABLE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ABLE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ABLE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ABLE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "ABLE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "ABLE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "ABLE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxInteractions, "ABLE_EVENT_STORE_MAX_INTERACTIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "ABLE_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Devices.HeartbeatInterval, "ABLE_DEVICES_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Devices.HeartbeatTimeout, "ABLE_DEVICES_HEARTBEAT_TIMEOUT_MS")
	overrideFloat(&cfg.Router.MinConfidence, "ABLE_ROUTER_MIN_CONFIDENCE")
	overrideInt(&cfg.Router.MaxProcessingTimeMS, "ABLE_ROUTER_MAX_PROCESSING_TIME_MS")
	overrideBool(&cfg.Router.AutoFallback, "ABLE_ROUTER_AUTO_FALLBACK")
	overrideStringSlice(&cfg.Router.DisabledChannels, "ABLE_ROUTER_DISABLED_CHANNELS")
	overrideInt(&cfg.Audio.TargetSampleRate, "ABLE_AUDIO_TARGET_SAMPLE_RATE")
	overrideFloat(&cfg.Audio.MinQualityScore, "ABLE_AUDIO_MIN_QUALITY_SCORE")
	overrideFloat(&cfg.Vision.MinQualityScore, "ABLE_VISION_MIN_QUALITY_SCORE")
	overrideString(&cfg.STT.Mode, "ABLE_STT_MODE")
	overrideString(&cfg.STT.Command, "ABLE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "ABLE_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "ABLE_STT_LANGUAGE")
	overrideString(&cfg.OCR.Mode, "ABLE_OCR_MODE")
	overrideString(&cfg.OCR.Command, "ABLE_OCR_COMMAND")
	overrideString(&cfg.OCR.Language, "ABLE_OCR_LANGUAGE")
	overrideString(&cfg.Sign.Mode, "ABLE_SIGN_MODE")
	overrideString(&cfg.Sign.Command, "ABLE_SIGN_COMMAND")
	overrideString(&cfg.Sign.ModelPath, "ABLE_SIGN_MODEL_PATH")
	overrideBool(&cfg.Capture.Camera.Enabled, "ABLE_CAPTURE_CAMERA_ENABLED")
	overrideString(&cfg.Capture.Camera.DeviceID, "ABLE_CAPTURE_CAMERA_DEVICE_ID")
	overrideInt(&cfg.Capture.Camera.IntervalMS, "ABLE_CAPTURE_CAMERA_INTERVAL_MS")
	overrideBool(&cfg.Capture.Microphone.Enabled, "ABLE_CAPTURE_MICROPHONE_ENABLED")
	overrideString(&cfg.Capture.Microphone.DeviceID, "ABLE_CAPTURE_MICROPHONE_DEVICE_ID")
	overrideInt(&cfg.Capture.Microphone.SampleRate, "ABLE_CAPTURE_MICROPHONE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Microphone.MinDurationMS, "ABLE_CAPTURE_MICROPHONE_MIN_DURATION_MS")
	overrideInt(&cfg.Capture.Microphone.MaxDurationMS, "ABLE_CAPTURE_MICROPHONE_MAX_DURATION_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Devices.HeartbeatInterval <= 0 {
		return errors.New("devices.heartbeat_interval_ms must be positive")
	}
	if cfg.Devices.HeartbeatTimeout <= cfg.Devices.HeartbeatInterval {
		return errors.New("devices.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.Router.MinConfidence < 0 || cfg.Router.MinConfidence > 1 {
		return errors.New("router.min_confidence must be within [0,1]")
	}
	if cfg.Router.MaxProcessingTimeMS <= 0 {
		return errors.New("router.max_processing_time_ms must be positive")
	}
	for _, ch := range cfg.Router.DisabledChannels {
		switch ch {
		case "text", "voice", "icon", "sign", "camera":
		default:
			return fmt.Errorf("router.disabled_channels contains unknown channel %q", ch)
		}
	}
	if cfg.Audio.TargetSampleRate <= 0 {
		return errors.New("audio.target_sample_rate must be positive")
	}
	if cfg.Audio.MinQualityScore < 0 || cfg.Audio.MinQualityScore > 1 {
		return errors.New("audio.min_quality_score must be within [0,1]")
	}
	if cfg.Vision.MinQualityScore < 0 || cfg.Vision.MinQualityScore > 1 {
		return errors.New("vision.min_quality_score must be within [0,1]")
	}
	switch cfg.STT.Mode {
	case "", "mock", "exec", "google":
	default:
		return errors.New("stt.mode must be one of mock|exec|google")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	switch cfg.OCR.Mode {
	case "", "mock", "exec":
	default:
		return errors.New("ocr.mode must be one of mock|exec")
	}
	if cfg.OCR.Mode == "exec" && cfg.OCR.Command == "" {
		return errors.New("ocr.command must be set when mode=exec")
	}
	switch cfg.Sign.Mode {
	case "", "mock", "exec":
	default:
		return errors.New("sign.mode must be one of mock|exec")
	}
	if cfg.Sign.Mode == "exec" && cfg.Sign.Command == "" {
		return errors.New("sign.command must be set when mode=exec")
	}
	if cfg.Capture.Microphone.Enabled {
		if cfg.Capture.Microphone.SampleRate <= 0 {
			return errors.New("capture.microphone.sample_rate must be positive")
		}
		if cfg.Capture.Microphone.Channels <= 0 {
			return errors.New("capture.microphone.channels must be positive")
		}
		if cfg.Capture.Microphone.MaxDurationMS > 0 && cfg.Capture.Microphone.MaxDurationMS <= cfg.Capture.Microphone.MinDurationMS {
			return errors.New("capture.microphone.max_duration_ms must be greater than min_duration_ms")
		}
	}
	if cfg.Capture.Camera.Enabled {
		if cfg.Capture.Camera.Width <= 0 || cfg.Capture.Camera.Height <= 0 {
			return errors.New("capture.camera geometry must be positive")
		}
	}
	return nil
}
