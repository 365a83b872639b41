package speech

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// NewEngine builds the engine selected by tts.mode.
func NewEngine(cfg config.TTSConfig, sampleRate int) (Engine, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockEngine(sampleRate), nil
	case "exec":
		return NewExecEngine(cfg.Command)
	case "http":
		return NewHTTPEngine(cfg.Endpoint, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	case "espeak":
		return NewEspeakEngine()
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// SettingsFromConfig returns the initial adapter settings.
func SettingsFromConfig(cfg config.TTSConfig) Settings {
	return Settings{Language: cfg.Language, Slow: cfg.Slow, Volume: cfg.Volume}
}
