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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind             string   `yaml:"bind"`
	Port             int      `yaml:"port"`
	CORSOrigins      []string `yaml:"cors_origins"`
	UploadRatePerMin int      `yaml:"upload_rate_per_min"`
	MaxUploadBytes   int64    `yaml:"max_upload_bytes"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	DefaultLang string          `yaml:"default_lang"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Journal     JournalConfig   `yaml:"journal"`
	Normalize   NormalizeConfig `yaml:"normalize"`
	STT         STTConfig       `yaml:"stt"`
	Grammar     GrammarConfig   `yaml:"grammar"`
	TTS         TTSConfig       `yaml:"tts"`
	Notify      NotifyConfig    `yaml:"notify"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type NormalizeConfig struct {
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type GrammarConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Mode             string   `yaml:"mode"` // mock, server
	Command          string   `yaml:"command"`
	Endpoint         string   `yaml:"endpoint"`
	Languages        []string `yaml:"languages"`
	StartupTimeoutMS int      `yaml:"startup_timeout_ms"`
	RequestTimeoutMS int      `yaml:"request_timeout_ms"`
}

type TTSConfig struct {
	Mode       string            `yaml:"mode"` // mock, exec
	Command    string            `yaml:"command"`
	SampleRate int               `yaml:"sample_rate"`
	Channels   int               `yaml:"channels"`
	TimeoutMS  int               `yaml:"timeout_ms"`
	Voices     map[string]string `yaml:"voices"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Subject string `yaml:"subject"`
}

func Default() Config {
	return Config{
		ServiceName: "talkback",
		Environment: "development",
		DefaultLang: "en",
		HTTP: HTTPConfig{
			Bind:             "0.0.0.0",
			Port:             8080,
			CORSOrigins:      []string{"http://localhost:5173"},
			UploadRatePerMin: 30,
			MaxUploadBytes:   16 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          "./data/talkback-runs.db",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Normalize: NormalizeConfig{
			Command:    "ffmpeg",
			SampleRate: 16000,
			Channels:   1,
			TimeoutMS:  20000,
		},
		STT: STTConfig{
			Mode:      "mock",
			TimeoutMS: 45000,
		},
		Grammar: GrammarConfig{
			Enabled:          true,
			Mode:             "mock",
			Endpoint:         "http://localhost:8081",
			Languages:        []string{"en", "de"},
			StartupTimeoutMS: 15000,
			RequestTimeoutMS: 10000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			TimeoutMS:  45000,
			Voices: map[string]string{
				"en": "models/en_US-kristin-medium.onnx",
				"de": "models/de_DE-thorsten-medium.onnx",
				"tr": "models/tr_TR-fettah-medium.onnx",
			},
		},
		Notify: NotifyConfig{
			Enabled: false,
			Subject: "pipeline.run.completed",
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
	overrideString(&cfg.ServiceName, "TALKBACK_SERVICE_NAME")
	overrideString(&cfg.Environment, "TALKBACK_ENVIRONMENT")
	overrideString(&cfg.DefaultLang, "TALKBACK_DEFAULT_LANG")
	overrideString(&cfg.HTTP.Bind, "TALKBACK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TALKBACK_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "TALKBACK_HTTP_CORS_ORIGINS")
	overrideInt(&cfg.HTTP.UploadRatePerMin, "TALKBACK_HTTP_UPLOAD_RATE_PER_MIN")
	overrideInt64(&cfg.HTTP.MaxUploadBytes, "TALKBACK_HTTP_MAX_UPLOAD_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "TALKBACK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TALKBACK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TALKBACK_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TALKBACK_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "TALKBACK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TALKBACK_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TALKBACK_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TALKBACK_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TALKBACK_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TALKBACK_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TALKBACK_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TALKBACK_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Journal.Enabled, "TALKBACK_JOURNAL_ENABLED")
	overrideString(&cfg.Journal.Path, "TALKBACK_JOURNAL_PATH")
	overrideInt(&cfg.Journal.RetentionDays, "TALKBACK_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRuns, "TALKBACK_JOURNAL_MAX_RUNS")
	overrideBool(&cfg.Journal.VacuumOnStart, "TALKBACK_JOURNAL_VACUUM_ON_START")
	overrideString(&cfg.Normalize.Command, "TALKBACK_NORMALIZE_COMMAND")
	overrideInt(&cfg.Normalize.SampleRate, "TALKBACK_NORMALIZE_SAMPLE_RATE")
	overrideInt(&cfg.Normalize.Channels, "TALKBACK_NORMALIZE_CHANNELS")
	overrideInt(&cfg.Normalize.TimeoutMS, "TALKBACK_NORMALIZE_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "TALKBACK_STT_MODE")
	overrideString(&cfg.STT.Command, "TALKBACK_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "TALKBACK_STT_MODEL_PATH")
	overrideInt(&cfg.STT.TimeoutMS, "TALKBACK_STT_TIMEOUT_MS")
	overrideBool(&cfg.Grammar.Enabled, "TALKBACK_GRAMMAR_ENABLED")
	overrideString(&cfg.Grammar.Mode, "TALKBACK_GRAMMAR_MODE")
	overrideString(&cfg.Grammar.Command, "TALKBACK_GRAMMAR_COMMAND")
	overrideString(&cfg.Grammar.Endpoint, "TALKBACK_GRAMMAR_ENDPOINT")
	overrideStringSlice(&cfg.Grammar.Languages, "TALKBACK_GRAMMAR_LANGUAGES")
	overrideInt(&cfg.Grammar.StartupTimeoutMS, "TALKBACK_GRAMMAR_STARTUP_TIMEOUT_MS")
	overrideInt(&cfg.Grammar.RequestTimeoutMS, "TALKBACK_GRAMMAR_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "TALKBACK_TTS_MODE")
	overrideString(&cfg.TTS.Command, "TALKBACK_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "TALKBACK_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "TALKBACK_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "TALKBACK_TTS_TIMEOUT_MS")
	overrideBool(&cfg.Notify.Enabled, "TALKBACK_NOTIFY_ENABLED")
	overrideString(&cfg.Notify.Subject, "TALKBACK_NOTIFY_SUBJECT")
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

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.DefaultLang == "" {
		return errors.New("default_lang must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return errors.New("http.max_upload_bytes must be positive")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Notify.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Notify.Subject == "" {
			return errors.New("notify.subject must not be empty when notify is enabled")
		}
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty when journal is enabled")
		}
		if cfg.Journal.RetentionDays < 0 {
			return errors.New("journal.retention_days must be >= 0")
		}
	}
	if cfg.Normalize.Command == "" {
		return errors.New("normalize.command must not be empty")
	}
	if cfg.Normalize.SampleRate <= 0 {
		return errors.New("normalize.sample_rate must be positive")
	}
	if cfg.Normalize.Channels != 1 {
		return errors.New("normalize.channels must be 1")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.Grammar.Enabled {
		switch cfg.Grammar.Mode {
		case "mock", "server":
		default:
			return errors.New("grammar.mode must be one of mock|server")
		}
		if cfg.Grammar.Mode == "server" && cfg.Grammar.Endpoint == "" {
			return errors.New("grammar.endpoint must be set when mode=server")
		}
		if len(cfg.Grammar.Languages) == 0 {
			return errors.New("grammar.languages must not be empty when grammar is enabled")
		}
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	for lang, path := range cfg.TTS.Voices {
		if lang == "" || path == "" {
			return errors.New("tts.voices entries must have non-empty language and model path")
		}
	}
	return nil
}
