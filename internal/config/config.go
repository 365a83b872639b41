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
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Journal     JournalConfig   `yaml:"journal"`
	STT         STTConfig       `yaml:"stt"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Delivery    DeliveryConfig  `yaml:"delivery"`
	Assistant   AssistantConfig `yaml:"assistant"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
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

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Mode               string   `yaml:"mode"` // mock, console, exec
	CaptureCommand     string   `yaml:"capture_command"`
	Command            string   `yaml:"command"`
	ModelPath          string   `yaml:"model_path"`
	Language           string   `yaml:"language"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	PhraseLimitSeconds int      `yaml:"phrase_limit_seconds"`
	StopPhrases        []string `yaml:"stop_phrases"`
}

type LLMConfig struct {
	Mode              string  `yaml:"mode"` // mock, ollama, exec
	Endpoint          string  `yaml:"endpoint"`
	Command           string  `yaml:"command"`
	Model             string  `yaml:"model"`
	ModelDir          string  `yaml:"model_dir"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	ContextLength     int     `yaml:"context_length"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

type TTSConfig struct {
	Mode           string   `yaml:"mode"` // mock, exec, http, espeak
	Command        string   `yaml:"command"`
	Endpoint       string   `yaml:"endpoint"`
	Language       string   `yaml:"language"`
	Languages      []string `yaml:"languages"`
	Slow           bool     `yaml:"slow"`
	Volume         float64  `yaml:"volume"`
	TimeoutSeconds int      `yaml:"timeout_seconds"` // 0 disables the client timeout
}

type PlaybackConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	SampleRate     int    `yaml:"sample_rate"`
	BitDepth       int    `yaml:"bit_depth"`
	Channels       int    `yaml:"channels"`
	BufferSize     int    `yaml:"buffer_size"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	GraceMS        int    `yaml:"grace_ms"`
}

type DeliveryConfig struct {
	TempDir           string  `yaml:"temp_dir"`
	TempPrefix        string  `yaml:"temp_prefix"`
	SentencePauseMS   int     `yaml:"sentence_pause_ms"`
	MinSentenceLength int     `yaml:"min_sentence_length"`
	FallbackPhrase    string  `yaml:"fallback_phrase"`
	DeleteAttempts    int     `yaml:"delete_attempts"`
	DeleteBackoffMS   int     `yaml:"delete_backoff_ms"`
	SlowRetry         bool    `yaml:"slow_retry"`
	SlowRetryVolume   float64 `yaml:"slow_retry_volume"`
}

type AssistantConfig struct {
	SessionPrefix string `yaml:"session_prefix"`
	Greet         bool   `yaml:"greet"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-voice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Journal: JournalConfig{
			Path:          "./data/loqa-voice.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		STT: STTConfig{
			Mode:               "console",
			Language:           "pt",
			TimeoutSeconds:     5,
			PhraseLimitSeconds: 10,
			StopPhrases:        []string{"parar", "sair", "tchau", "encerrar"},
		},
		LLM: LLMConfig{
			Mode:              "mock",
			Endpoint:          "http://localhost:11434",
			Model:             "llama3.2:latest",
			ModelDir:          "./models",
			MaxTokens:         512,
			Temperature:       0.7,
			ContextLength:     2048,
			RepetitionPenalty: 1.1,
			TimeoutSeconds:    120,
		},
		TTS: TTSConfig{
			Mode:      "mock",
			Language:  "pt-br",
			Languages: []string{"pt-br", "pt", "en", "en-us", "en-gb", "es", "fr", "de", "it"},
			Volume:    1.0,
		},
		Playback: PlaybackConfig{
			Mode:           "mock",
			Command:        "ffplay -nodisp -autoexit -loglevel quiet -volume {volume}",
			SampleRate:     22050,
			BitDepth:       16,
			Channels:       1,
			BufferSize:     512,
			PollIntervalMS: 100,
			GraceMS:        200,
		},
		Delivery: DeliveryConfig{
			TempPrefix:        "loqa_voice_",
			SentencePauseMS:   500,
			MinSentenceLength: 4,
			FallbackPhrase:    "Resposta processada, verifique o texto no console.",
			DeleteAttempts:    5,
			DeleteBackoffMS:   100,
			SlowRetry:         false,
			SlowRetryVolume:   0.8,
		},
		Assistant: AssistantConfig{
			SessionPrefix: "cli",
			Greet:         true,
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
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Journal.Path, "LOQA_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "LOQA_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "LOQA_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxSessions, "LOQA_JOURNAL_MAX_SESSIONS")
	overrideBool(&cfg.Journal.VacuumOnStart, "LOQA_JOURNAL_VACUUM_ON_START")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.CaptureCommand, "LOQA_STT_CAPTURE_COMMAND")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideInt(&cfg.STT.TimeoutSeconds, "LOQA_STT_TIMEOUT_SECONDS")
	overrideInt(&cfg.STT.PhraseLimitSeconds, "LOQA_STT_PHRASE_LIMIT_SECONDS")
	overrideStringSlice(&cfg.STT.StopPhrases, "LOQA_STT_STOP_PHRASES")
	overrideString(&cfg.LLM.Mode, "LOQA_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LOQA_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "LOQA_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "LOQA_LLM_MODEL")
	overrideString(&cfg.LLM.ModelDir, "LOQA_LLM_MODEL_DIR")
	overrideInt(&cfg.LLM.MaxTokens, "LOQA_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LOQA_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.ContextLength, "LOQA_LLM_CONTEXT_LENGTH")
	overrideFloat(&cfg.LLM.RepetitionPenalty, "LOQA_LLM_REPETITION_PENALTY")
	overrideInt(&cfg.LLM.TimeoutSeconds, "LOQA_LLM_TIMEOUT_SECONDS")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Endpoint, "LOQA_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Language, "LOQA_TTS_LANGUAGE")
	overrideStringSlice(&cfg.TTS.Languages, "LOQA_TTS_LANGUAGES")
	overrideBool(&cfg.TTS.Slow, "LOQA_TTS_SLOW")
	overrideFloat(&cfg.TTS.Volume, "LOQA_TTS_VOLUME")
	overrideInt(&cfg.TTS.TimeoutSeconds, "LOQA_TTS_TIMEOUT_SECONDS")
	overrideString(&cfg.Playback.Mode, "LOQA_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "LOQA_PLAYBACK_COMMAND")
	overrideInt(&cfg.Playback.SampleRate, "LOQA_PLAYBACK_SAMPLE_RATE")
	overrideInt(&cfg.Playback.BitDepth, "LOQA_PLAYBACK_BIT_DEPTH")
	overrideInt(&cfg.Playback.Channels, "LOQA_PLAYBACK_CHANNELS")
	overrideInt(&cfg.Playback.BufferSize, "LOQA_PLAYBACK_BUFFER_SIZE")
	overrideInt(&cfg.Playback.PollIntervalMS, "LOQA_PLAYBACK_POLL_INTERVAL_MS")
	overrideInt(&cfg.Playback.GraceMS, "LOQA_PLAYBACK_GRACE_MS")
	overrideString(&cfg.Delivery.TempDir, "LOQA_DELIVERY_TEMP_DIR")
	overrideString(&cfg.Delivery.TempPrefix, "LOQA_DELIVERY_TEMP_PREFIX")
	overrideInt(&cfg.Delivery.SentencePauseMS, "LOQA_DELIVERY_SENTENCE_PAUSE_MS")
	overrideInt(&cfg.Delivery.MinSentenceLength, "LOQA_DELIVERY_MIN_SENTENCE_LENGTH")
	overrideString(&cfg.Delivery.FallbackPhrase, "LOQA_DELIVERY_FALLBACK_PHRASE")
	overrideInt(&cfg.Delivery.DeleteAttempts, "LOQA_DELIVERY_DELETE_ATTEMPTS")
	overrideInt(&cfg.Delivery.DeleteBackoffMS, "LOQA_DELIVERY_DELETE_BACKOFF_MS")
	overrideBool(&cfg.Delivery.SlowRetry, "LOQA_DELIVERY_SLOW_RETRY")
	overrideFloat(&cfg.Delivery.SlowRetryVolume, "LOQA_DELIVERY_SLOW_RETRY_VOLUME")
	overrideString(&cfg.Assistant.SessionPrefix, "LOQA_ASSISTANT_SESSION_PREFIX")
	overrideBool(&cfg.Assistant.Greet, "LOQA_ASSISTANT_GREET")
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Journal.RetentionMode != "ephemeral" && cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.STT.Mode {
	case "mock", "console":
	case "exec":
		if cfg.STT.CaptureCommand == "" || cfg.STT.Command == "" {
			return errors.New("stt.capture_command and stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|console|exec")
	}
	if cfg.STT.TimeoutSeconds < 0 || cfg.STT.PhraseLimitSeconds < 0 {
		return errors.New("stt timeouts must be >= 0")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "espeak":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	case "http":
		if cfg.TTS.Endpoint == "" {
			return errors.New("tts.endpoint must be set when mode=http")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec|http|espeak")
	}
	if strings.TrimSpace(cfg.TTS.Language) == "" {
		return errors.New("tts.language must not be empty")
	}
	if cfg.TTS.Volume < 0 || cfg.TTS.Volume > 1 {
		return errors.New("tts.volume must be between 0.0 and 1.0")
	}
	switch cfg.Playback.Mode {
	case "mock":
	case "exec":
		if cfg.Playback.Command == "" {
			return errors.New("playback.command must be set when mode=exec")
		}
	default:
		return errors.New("playback.mode must be one of mock|exec")
	}
	if cfg.Playback.SampleRate <= 0 || cfg.Playback.Channels <= 0 || cfg.Playback.BitDepth <= 0 {
		return errors.New("playback.sample_rate, bit_depth and channels must be positive")
	}
	if cfg.Playback.PollIntervalMS <= 0 {
		return errors.New("playback.poll_interval_ms must be positive")
	}
	if cfg.Playback.GraceMS < 0 {
		return errors.New("playback.grace_ms must be >= 0")
	}
	if cfg.Delivery.TempPrefix == "" {
		return errors.New("delivery.temp_prefix must not be empty")
	}
	if cfg.Delivery.DeleteAttempts <= 0 {
		return errors.New("delivery.delete_attempts must be >= 1")
	}
	if cfg.Delivery.DeleteBackoffMS < 0 || cfg.Delivery.SentencePauseMS < 0 {
		return errors.New("delivery durations must be >= 0")
	}
	if cfg.Delivery.MinSentenceLength < 0 {
		return errors.New("delivery.min_sentence_length must be >= 0")
	}
	if cfg.Delivery.SlowRetryVolume < 0 || cfg.Delivery.SlowRetryVolume > 1 {
		return errors.New("delivery.slow_retry_volume must be between 0.0 and 1.0")
	}
	return nil
}
