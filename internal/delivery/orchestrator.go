// Package delivery turns a generated response into audio, escalating through
// progressively simpler strategies until something plays.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/speech"
	"github.com/loqalabs/loqa-voice/internal/tempaudio"
)

// Synthesizer is the part of speech.Adapter the orchestrator drives.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (speech.Artifact, error)
	Settings() speech.Settings
	Override(s speech.Settings) (restore func())
}

// StreamSynthesizer writes the artifact into w and returns its format. When
// the synthesizer implements it, audio goes straight into the temp file.
type StreamSynthesizer interface {
	SynthesizeTo(ctx context.Context, text string, w io.Writer) (format string, err error)
}

type Options struct {
	// TempDir is the parent of the scratch directory; empty uses os.TempDir.
	TempDir    string
	TempPrefix string
	FS         tempaudio.FS
	Retry      tempaudio.RetryPolicy

	PollInterval time.Duration
	Grace        time.Duration

	// Strategies defaults to DefaultStrategies with the default fallback phrase.
	Strategies []Strategy

	Sleep  func(time.Duration)
	Logger *slog.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultFallbackPhrase is played when neither the response nor any of its
// sentences could be delivered.
const DefaultFallbackPhrase = "Resposta processada, verifique o texto no console."

// Orchestrator owns one output device and one scratch directory for its whole
// lifetime. Calls are serialized; at most one utterance plays at a time.
type Orchestrator struct {
	synth      Synthesizer
	device     playback.Device
	player     *playback.Engine
	dir        *tempaudio.Dir
	strategies []Strategy
	sleep      func(time.Duration)
	log        *slog.Logger
	metrics    *metrics
	tracer     trace.Tracer

	mu     sync.Mutex
	closed bool
}

// New opens the output device and creates the scratch directory. Either
// failing is fatal since no strategy could ever play.
func New(synth Synthesizer, open playback.OpenFunc, opts Options) (*Orchestrator, error) {
	if synth == nil {
		return nil, errors.New("delivery: synthesizer is required")
	}
	if open == nil {
		return nil, errors.New("delivery: device opener is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "delivery"))
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies(DefaultMinSentenceLength, DefaultSentencePause, DefaultFallbackPhrase)
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = tempaudio.DefaultRetryPolicy()
	}
	prefix := opts.TempPrefix
	if prefix == "" {
		prefix = "loqa_voice_"
	}

	m, err := newMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("delivery metrics: %w", err)
	}

	device, err := open()
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	dir, err := tempaudio.New(opts.FS, opts.TempDir, prefix,
		tempaudio.WithRetryPolicy(retry),
		tempaudio.WithSleep(sleep),
		tempaudio.WithLogger(log),
		tempaudio.WithLeakHook(func(string) { m.leaked() }),
	)
	if err != nil {
		_ = device.Close()
		return nil, err
	}

	engineOpts := []playback.EngineOption{playback.WithSleep(sleep)}
	if opts.PollInterval > 0 {
		engineOpts = append(engineOpts, playback.WithPollInterval(opts.PollInterval))
	}
	if opts.Grace > 0 {
		engineOpts = append(engineOpts, playback.WithGrace(opts.Grace))
	}

	log.Info("delivery ready", slog.String("temp_dir", dir.Path()), slog.Int("strategies", len(strategies)))
	return &Orchestrator{
		synth:      synth,
		device:     device,
		player:     playback.NewEngine(device, log, engineOpts...),
		dir:        dir,
		strategies: strategies,
		sleep:      sleep,
		log:        log,
		metrics:    m,
		tracer:     tracer,
	}, nil
}

// TempDir is the scratch directory audio passes through.
func (o *Orchestrator) TempDir() string { return o.dir.Path() }

// Deliver plays text, escalating through the strategies. It never panics and
// reports failure only through the returned Outcome.
func (o *Orchestrator) Deliver(ctx context.Context, text string) Outcome {
	return o.DeliverDetailed(ctx, text).Outcome
}

// DeliverDetailed is Deliver plus which strategy won and how many pieces played.
func (o *Orchestrator) DeliverDetailed(ctx context.Context, text string) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.log.Warn("delivery after cleanup ignored")
		return Result{Outcome: Failed}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Outcome: Failed}
	}

	ctx, span := o.tracer.Start(ctx, "delivery.deliver",
		trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()
	started := time.Now()

	var res Result
	for _, strategy := range o.strategies {
		if ctx.Err() != nil {
			o.log.Warn("delivery cancelled", slog.String("error", ctx.Err().Error()))
			break
		}
		played, attempted := o.run(ctx, strategy, text)
		res.Attempted += attempted
		if played > 0 {
			res.Outcome = strategy.Outcome
			res.Strategy = strategy.Name
			res.Played = played
			break
		}
		if attempted > 0 {
			o.log.Warn("delivery strategy failed",
				slog.String("strategy", strategy.Name),
				slog.Int("attempts", attempted))
		}
	}

	span.SetAttributes(
		attribute.String("delivery.outcome", res.Outcome.String()),
		attribute.String("delivery.strategy", res.Strategy),
		attribute.Int("delivery.played", res.Played),
	)
	o.metrics.delivered(ctx, res)
	level := slog.LevelInfo
	if res.Outcome == Failed {
		level = slog.LevelError
	}
	o.log.Log(ctx, level, "response delivered",
		slog.String("outcome", res.Outcome.String()),
		slog.String("strategy", res.Strategy),
		slog.Int("played", res.Played),
		slog.Int("attempted", res.Attempted),
		slog.Duration("duration", time.Since(started)))
	return res
}

// run attempts every piece of the strategy once, in order.
func (o *Orchestrator) run(ctx context.Context, strategy Strategy, text string) (played, attempted int) {
	for i, piece := range strategy.Pieces(text) {
		if ctx.Err() != nil {
			return played, attempted
		}
		if i > 0 && strategy.Pause > 0 {
			o.sleep(strategy.Pause)
		}
		attempted++
		if o.deliverSingle(ctx, piece) {
			played++
		}
	}
	return played, attempted
}

// SpeakWithOptions plays text once with the given synthesis settings. The
// previous settings are restored on every exit path.
func (o *Orchestrator) SpeakWithOptions(ctx context.Context, text string, slow bool, language string, volume float64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || strings.TrimSpace(text) == "" {
		return false
	}
	restore := o.synth.Override(speech.Settings{Language: language, Slow: slow, Volume: volume})
	defer restore()

	ctx, span := o.tracer.Start(ctx, "delivery.speak_with_options", trace.WithAttributes(
		attribute.Bool("speech.slow", slow),
		attribute.String("speech.language", language),
		attribute.Float64("speech.volume", volume),
	))
	defer span.End()

	ok := o.deliverSingle(ctx, text)
	span.SetAttributes(attribute.Bool("delivery.played", ok))
	return ok
}

// deliverSingle is one synthesize, materialize, play, delete cycle.
func (o *Orchestrator) deliverSingle(ctx context.Context, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("delivery attempt panicked", slog.Any("panic", r))
			o.metrics.attemptFailed(ctx, "panic")
			ok = false
		}
	}()

	handle, stage, err := o.materialize(ctx, text)
	if err != nil {
		o.attemptFailed(ctx, stage, err)
		return false
	}
	defer o.dir.Release(handle)

	if err := o.player.SetVolume(o.synth.Settings().Volume); err != nil {
		o.attemptFailed(ctx, "playback", err)
		return false
	}
	if err := o.player.Play(handle.Path); err != nil {
		o.attemptFailed(ctx, "playback", err)
		return false
	}
	return true
}

// materialize synthesizes text into a new temp file. stage names the step that
// failed.
func (o *Orchestrator) materialize(ctx context.Context, text string) (tempaudio.Handle, string, error) {
	if streamer, ok := o.synth.(StreamSynthesizer); ok {
		handle, err := o.dir.CreateFrom(func(w io.Writer) (string, error) {
			return streamer.SynthesizeTo(ctx, text, w)
		})
		if err != nil {
			if errors.Is(err, tempaudio.ErrTempFile) {
				return tempaudio.Handle{}, "tempfile", err
			}
			return tempaudio.Handle{}, "synthesis", err
		}
		return handle, "", nil
	}

	art, err := o.synth.Synthesize(ctx, text)
	if err != nil {
		return tempaudio.Handle{}, "synthesis", err
	}
	handle, err := o.dir.Create(art.Data, art.Format)
	if err != nil {
		return tempaudio.Handle{}, "tempfile", err
	}
	return handle, "", nil
}

func (o *Orchestrator) attemptFailed(ctx context.Context, stage string, err error) {
	o.metrics.attemptFailed(ctx, stage)
	o.log.Warn("delivery attempt failed", slog.String("stage", stage), slog.String("error", err.Error()))
}

// Cleanup releases the device and removes the scratch directory. Only the
// first call does anything.
func (o *Orchestrator) Cleanup() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	err := errors.Join(o.device.Close(), o.dir.Close())
	if err != nil {
		o.log.Warn("delivery cleanup incomplete", slog.String("error", err.Error()))
		return err
	}
	o.log.Info("delivery resources released")
	return nil
}
