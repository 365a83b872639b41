package stt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/console"
)

// NewListener builds the listener selected by stt.mode. in is only used in
// console mode.
func NewListener(cfg config.STTConfig, in console.LineReader, log *slog.Logger) (Listener, error) {
	switch cfg.Mode {
	case "", "console":
		if in == nil {
			return nil, fmt.Errorf("console listener needs an input reader")
		}
		return NewConsoleListener(in, ""), nil
	case "mock":
		return NewMockListener(), nil
	case "exec":
		return NewExecListener(cfg, log)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

// DefaultOptions converts the configured timeouts.
func DefaultOptions(cfg config.STTConfig) ListenOptions {
	return ListenOptions{
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		PhraseLimit: time.Duration(cfg.PhraseLimitSeconds) * time.Second,
	}
}
