package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/delivery"
	"github.com/loqalabs/loqa-voice/internal/journal"
	"github.com/loqalabs/loqa-voice/internal/llm"
	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/speech"
)

// Voice is the audio side of the process: synthesis, the orchestrator that
// owns the output device, and the journal.
type Voice struct {
	Adapter      *speech.Adapter
	Orchestrator *delivery.Orchestrator
	Journal      *journal.Journal
}

func NewVoice(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Voice, error) {
	engine, err := speech.NewEngine(cfg.TTS, cfg.Playback.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("speech engine: %w", err)
	}
	adapter := speech.NewAdapter(engine, speech.SettingsFromConfig(cfg.TTS), cfg.TTS.Languages)

	open, err := playback.Opener(cfg.Playback, logger.With(slog.String("component", "audio-device")))
	if err != nil {
		return nil, err
	}
	orch, err := delivery.New(adapter, open, delivery.OptionsFromConfig(cfg.Delivery, cfg.Playback, logger))
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(ctx, cfg.Journal, logger)
	if err != nil {
		_ = orch.Cleanup()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Voice{Adapter: adapter, Orchestrator: orch, Journal: j}, nil
}

// Close releases the device, scratch directory and journal.
func (v *Voice) Close() error {
	return errors.Join(v.Orchestrator.Cleanup(), v.Journal.Close())
}

// NewResponder builds the language model responder for the synthesis language.
func NewResponder(cfg config.Config, logger *slog.Logger) (*llm.Responder, error) {
	gen, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	return llm.NewResponder(gen, llm.RequestFromConfig(cfg.LLM), cfg.TTS.Language, timeout, logger), nil
}
