package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	Tracing      string `yaml:"tracing"` // off, stdout, otlp
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Node        NodeConfig      `yaml:"node"`
	History     HistoryConfig   `yaml:"history"`
	Settings    SettingsConfig  `yaml:"settings"`
	Voice       VoiceConfig     `yaml:"voice"`
	TTS         TTSConfig       `yaml:"tts"`
	Audio       AudioConfig     `yaml:"audio"`
	Dispatch    DispatchConfig  `yaml:"dispatch"`
	Hotkeys     HotkeysConfig   `yaml:"hotkeys"`
	Tray        TrayConfig      `yaml:"tray"`
	Desktop     DesktopConfig   `yaml:"desktop"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	StoreText     bool   `yaml:"store_text"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SettingsConfig struct {
	Path string `yaml:"path"`
}

type VoiceConfig struct {
	ModelsDir         string `yaml:"models_dir"`
	Extension         string `yaml:"extension"`
	DefaultSampleRate int    `yaml:"default_sample_rate"`
}

type TTSConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	Format    string `yaml:"format"` // raw, jsonl, wav
	TimeoutMS int    `yaml:"timeout_ms"`
	DumpDir   string `yaml:"dump_dir"`
}

type AudioConfig struct {
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	PreferredDevice string `yaml:"preferred_device"`
}

type DispatchConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type HotkeysConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SubmitKey string `yaml:"submit_key"`
	CancelKey string `yaml:"cancel_key"`
}

type TrayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

type DesktopConfig struct {
	Notifications bool `yaml:"notifications"`
	InputDialog   bool `yaml:"input_dialog"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-say",
		Environment: "desktop",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			Tracing:      "off",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4223,
			StoreDir:       "~/.loqa-say/nats",
			Servers:        []string{"nats://127.0.0.1:4223"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "loqa-say-1",
			HeartbeatInterval: 5000,
		},
		History: HistoryConfig{
			Path:          "~/.loqa-say/history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxEntries:    1000,
		},
		Settings: SettingsConfig{
			Path: "~/.loqa-say/settings.toml",
		},
		Voice: VoiceConfig{
			ModelsDir:         "./models",
			Extension:         ".onnx",
			DefaultSampleRate: 22050,
		},
		TTS: TTSConfig{
			Mode:      "exec",
			Command:   "piper --model {model} --config {config} --output_raw",
			Format:    "raw",
			TimeoutMS: 60000,
		},
		Audio: AudioConfig{
			FramesPerBuffer: 1024,
			PreferredDevice: "CABLE Input (VB-Audio Virtual Cable)",
		},
		Dispatch: DispatchConfig{
			QueueSize: 32,
		},
		Hotkeys: HotkeysConfig{
			Enabled:   true,
			SubmitKey: "enter",
			CancelKey: "escape",
		},
		Tray: TrayConfig{
			Enabled: true,
			Title:   "Loqa Say",
		},
		Desktop: DesktopConfig{
			Notifications: true,
			InputDialog:   true,
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
	expandPaths(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_SAY_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_SAY_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "LOQA_SAY_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "LOQA_SAY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_SAY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_SAY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.Tracing, "LOQA_SAY_TELEMETRY_TRACING")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_SAY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_SAY_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "LOQA_SAY_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_SAY_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "LOQA_SAY_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "LOQA_SAY_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_SAY_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_SAY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_SAY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_SAY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_SAY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_SAY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_SAY_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LOQA_SAY_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "LOQA_SAY_NODE_HEARTBEAT_INTERVAL_MS")
	overrideString(&cfg.History.Path, "LOQA_SAY_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "LOQA_SAY_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "LOQA_SAY_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxEntries, "LOQA_SAY_HISTORY_MAX_ENTRIES")
	overrideBool(&cfg.History.StoreText, "LOQA_SAY_HISTORY_STORE_TEXT")
	overrideBool(&cfg.History.VacuumOnStart, "LOQA_SAY_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Settings.Path, "LOQA_SAY_SETTINGS_PATH")
	overrideString(&cfg.Voice.ModelsDir, "LOQA_SAY_VOICE_MODELS_DIR")
	overrideString(&cfg.Voice.Extension, "LOQA_SAY_VOICE_EXTENSION")
	overrideInt(&cfg.Voice.DefaultSampleRate, "LOQA_SAY_VOICE_DEFAULT_SAMPLE_RATE")
	overrideString(&cfg.TTS.Mode, "LOQA_SAY_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_SAY_TTS_COMMAND")
	overrideString(&cfg.TTS.Format, "LOQA_SAY_TTS_FORMAT")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_SAY_TTS_TIMEOUT_MS")
	overrideString(&cfg.TTS.DumpDir, "LOQA_SAY_TTS_DUMP_DIR")
	overrideInt(&cfg.Audio.FramesPerBuffer, "LOQA_SAY_AUDIO_FRAMES_PER_BUFFER")
	overrideString(&cfg.Audio.PreferredDevice, "LOQA_SAY_AUDIO_PREFERRED_DEVICE")
	overrideInt(&cfg.Dispatch.QueueSize, "LOQA_SAY_DISPATCH_QUEUE_SIZE")
	overrideBool(&cfg.Hotkeys.Enabled, "LOQA_SAY_HOTKEYS_ENABLED")
	overrideString(&cfg.Hotkeys.SubmitKey, "LOQA_SAY_HOTKEYS_SUBMIT_KEY")
	overrideString(&cfg.Hotkeys.CancelKey, "LOQA_SAY_HOTKEYS_CANCEL_KEY")
	overrideBool(&cfg.Tray.Enabled, "LOQA_SAY_TRAY_ENABLED")
	overrideString(&cfg.Tray.Title, "LOQA_SAY_TRAY_TITLE")
	overrideBool(&cfg.Desktop.Notifications, "LOQA_SAY_DESKTOP_NOTIFICATIONS")
	overrideBool(&cfg.Desktop.InputDialog, "LOQA_SAY_DESKTOP_INPUT_DIALOG")
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

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func expandPaths(cfg *Config) {
	cfg.Bus.StoreDir = ExpandHome(cfg.Bus.StoreDir)
	cfg.History.Path = ExpandHome(cfg.History.Path)
	cfg.Settings.Path = ExpandHome(cfg.Settings.Path)
	cfg.Voice.ModelsDir = ExpandHome(cfg.Voice.ModelsDir)
	cfg.TTS.DumpDir = ExpandHome(cfg.TTS.DumpDir)
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.Tracing {
	case "off", "stdout", "otlp":
	default:
		return errors.New("telemetry.tracing must be one of off|stdout|otlp")
	}
	if cfg.Telemetry.Tracing == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when tracing=otlp")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Node.ID == "" {
			return errors.New("node.id must not be empty")
		}
		if cfg.Node.HeartbeatInterval <= 0 {
			return errors.New("node.heartbeat_interval_ms must be positive")
		}
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Settings.Path == "" {
		return errors.New("settings.path must not be empty")
	}
	if cfg.Voice.ModelsDir == "" {
		return errors.New("voice.models_dir must not be empty")
	}
	if !strings.HasPrefix(cfg.Voice.Extension, ".") {
		return errors.New("voice.extension must start with a dot")
	}
	if cfg.Voice.DefaultSampleRate <= 0 {
		return errors.New("voice.default_sample_rate must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" {
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		switch cfg.TTS.Format {
		case "raw", "jsonl", "wav":
		default:
			return errors.New("tts.format must be one of raw|jsonl|wav")
		}
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		return errors.New("audio.frames_per_buffer must be positive")
	}
	if cfg.Dispatch.QueueSize <= 0 {
		return errors.New("dispatch.queue_size must be >= 1")
	}
	return nil
}
