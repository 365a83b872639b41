package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-voice/internal/assistant"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/console"
	"github.com/loqalabs/loqa-voice/internal/delivery"
	"github.com/loqalabs/loqa-voice/internal/runtime"
	"github.com/loqalabs/loqa-voice/internal/stt"
)

func newMenuCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Choose a mode from the interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMenu(cmd.Context(), flags)
		},
	}
	addLanguageFlag(cmd, flags)
	return cmd
}

func newInteractiveCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Converse until a stop phrase is heard",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAssistant(cmd.Context(), flags, func(ctx context.Context, a *assistant.Assistant, _ console.LineReader) error {
				return a.RunInteractive(ctx)
			})
		},
	}
	addLanguageFlag(cmd, flags)
	return cmd
}

func newOnceCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Listen for one question and answer it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAssistant(cmd.Context(), flags, func(ctx context.Context, a *assistant.Assistant, _ console.LineReader) error {
				return a.RunOnce(ctx)
			})
		},
	}
	addLanguageFlag(cmd, flags)
	return cmd
}

func newSelfTestCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Check synthesis, playback and recognition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAssistant(cmd.Context(), flags, func(ctx context.Context, a *assistant.Assistant, _ console.LineReader) error {
				if !a.SelfTest(ctx).Passed() {
					return errors.New("self-test failed")
				}
				return nil
			})
		},
	}
	addLanguageFlag(cmd, flags)
	return cmd
}

func newSayCommand(flags *globalFlags) *cobra.Command {
	var (
		slow     bool
		language string
		volume   float64
	)
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			ctx := cmd.Context()
			shutdown := setupCLITelemetry(ctx, cfg, logger)
			defer shutdown()

			v, err := runtime.NewVoice(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := v.Close(); err != nil {
					logger.Warn("cleanup failed", slog.String("error", err.Error()))
				}
			}()

			out := cmd.OutOrStdout()
			if slow || language != "" || cmd.Flags().Changed("volume") {
				if !v.Orchestrator.SpeakWithOptions(ctx, args[0], slow, language, volume) {
					return errors.New("speech failed")
				}
				fmt.Fprintln(out, "✅ Spoken with custom settings")
				return nil
			}
			res := v.Orchestrator.DeliverDetailed(ctx, args[0])
			fmt.Fprintf(out, "%s (%s, %d/%d)\n", res.Outcome, res.Strategy, res.Played, res.Attempted)
			if res.Outcome == delivery.Failed {
				return errors.New("speech failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&slow, "slow", false, "Speak slowly")
	cmd.Flags().StringVar(&language, "language", "", "Language code for this utterance")
	cmd.Flags().Float64Var(&volume, "volume", 1.0, "Playback volume between 0 and 1")
	return cmd
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the speak service on the message bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)
			rt := runtime.New(cfg, logger)
			if err := rt.Start(cmd.Context()); err != nil {
				logger.Error("runtime exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

// addLanguageFlag binds --language for the assistant modes. It switches the
// synthesis voice and picks the matching prompts and phrases.
func addLanguageFlag(cmd *cobra.Command, flags *globalFlags) {
	cmd.Flags().StringVar(&flags.language, "language", "", "Speak and answer in this language for the whole session")
}

func runMenu(ctx context.Context, flags *globalFlags) error {
	return withAssistant(ctx, flags, func(ctx context.Context, a *assistant.Assistant, in console.LineReader) error {
		return a.RunMenu(ctx, in)
	})
}

// withAssistant builds the full pipeline around a readline console, runs fn
// and releases everything afterwards.
func withAssistant(ctx context.Context, flags *globalFlags, fn func(context.Context, *assistant.Assistant, console.LineReader) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	shutdown := setupCLITelemetry(ctx, cfg, logger)
	defer shutdown()

	v, err := runtime.NewVoice(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := v.Close(); err != nil {
			logger.Warn("cleanup failed", slog.String("error", err.Error()))
		}
	}()
	if flags.language != "" {
		if err := v.Adapter.SetLanguage(flags.language); err != nil {
			return err
		}
		cfg.TTS.Language = flags.language
	}
	if err := v.Journal.Prune(ctx); err != nil {
		logger.Warn("journal prune failed", slog.String("error", err.Error()))
	}

	responder, err := runtime.NewResponder(cfg, logger)
	if err != nil {
		return err
	}

	in, err := console.Open(nil, nil)
	if err != nil {
		return fmt.Errorf("open console: %w", err)
	}
	defer in.Close()

	listener, err := stt.NewListener(cfg.STT, in, logger)
	if err != nil {
		return err
	}

	a := assistant.New(v.Orchestrator, responder, listener, v.Journal, assistantOptions(cfg, logger))
	defer a.Close()
	return fn(ctx, a, in)
}

func assistantOptions(cfg config.Config, logger *slog.Logger) assistant.Options {
	return assistant.Options{
		Language:        cfg.TTS.Language,
		StopPhrases:     cfg.STT.StopPhrases,
		Listen:          stt.DefaultOptions(cfg.STT),
		SlowRetry:       cfg.Delivery.SlowRetry,
		SlowRetryVolume: cfg.Delivery.SlowRetryVolume,
		SessionPrefix:   cfg.Assistant.SessionPrefix,
		Greet:           cfg.Assistant.Greet,
		Out:             os.Stdout,
		Logger:          logger,
	}
}

// setupCLITelemetry only exports when an OTLP collector is configured; the
// delivery counters are otherwise recorded on the default no-op provider.
func setupCLITelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) func() {
	if cfg.Telemetry.OTLPEndpoint == "" {
		return func() {}
	}
	tel, err := runtime.SetupTelemetry(ctx, cfg, logger, false)
	if err != nil {
		logger.Warn("telemetry disabled", slog.String("error", err.Error()))
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
}
