// Package assistant runs the listen, answer, speak loop on top of the
// delivery orchestrator.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-voice/internal/console"
	"github.com/loqalabs/loqa-voice/internal/delivery"
	"github.com/loqalabs/loqa-voice/internal/journal"
	"github.com/loqalabs/loqa-voice/internal/stt"
)

// Speaker is the delivery surface the assistant uses.
type Speaker interface {
	DeliverDetailed(ctx context.Context, text string) delivery.Result
	SpeakWithOptions(ctx context.Context, text string, slow bool, language string, volume float64) bool
	Cleanup() error
}

type Responder interface {
	Respond(ctx context.Context, sessionID, question string) string
}

type Journal interface {
	StartSession(ctx context.Context, s journal.Session) error
	EndSession(ctx context.Context, sessionID string) error
	Record(ctx context.Context, e journal.Entry) error
}

// Listen windows used by the single interaction and the self-test.
var (
	OnceListen     = stt.ListenOptions{Timeout: 10 * time.Second, PhraseLimit: 15 * time.Second}
	SelfTestListen = stt.ListenOptions{Timeout: 5 * time.Second, PhraseLimit: 10 * time.Second}
)

// maxListenErrors stops the interactive loop when the listener keeps failing.
const maxListenErrors = 3

type Options struct {
	Language        string
	StopPhrases     []string
	Listen          stt.ListenOptions
	SlowRetry       bool
	SlowRetryVolume float64
	SessionPrefix   string
	Greet           bool
	Out             io.Writer
	Logger          *slog.Logger
}

type Assistant struct {
	speaker   Speaker
	responder Responder
	listener  stt.Listener
	journal   Journal
	phrases   Phrases
	opts      Options
	out       io.Writer
	log       *slog.Logger
	closed    bool
}

// Reply is what happened to one processed input.
type Reply struct {
	Response    string
	Result      delivery.Result
	SlowRetried bool
}

func New(speaker Speaker, responder Responder, listener stt.Listener, j Journal, opts Options) *Assistant {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.SessionPrefix == "" {
		opts.SessionPrefix = "cli"
	}
	return &Assistant{
		speaker:   speaker,
		responder: responder,
		listener:  listener,
		journal:   j,
		phrases:   PhrasesFor(opts.Language),
		opts:      opts,
		out:       out,
		log:       log.With(slog.String("component", "assistant")),
	}
}

func (a *Assistant) newSession(ctx context.Context, mode string) string {
	id := a.opts.SessionPrefix + "-" + uuid.NewString()
	if a.journal != nil {
		if err := a.journal.StartSession(ctx, journal.Session{ID: id, Mode: mode, Language: a.opts.Language}); err != nil {
			a.log.Warn("journal session start failed", slog.String("error", err.Error()))
		}
	}
	a.log.Info("session started", slog.String("session_id", id), slog.String("mode", mode))
	return id
}

func (a *Assistant) endSession(ctx context.Context, id string) {
	if a.journal == nil {
		return
	}
	if err := a.journal.EndSession(context.WithoutCancel(ctx), id); err != nil {
		a.log.Warn("journal session end failed", slog.String("error", err.Error()))
	}
}

// Say delivers a fixed phrase, printing it as well so it is never lost.
func (a *Assistant) Say(ctx context.Context, text string) delivery.Outcome {
	fmt.Fprintf(a.out, "🤖 %s\n", text)
	return a.speaker.DeliverDetailed(ctx, text).Outcome
}

// ProcessInput answers text and speaks the answer. When every delivery
// strategy fails and slow retry is enabled, one slower, quieter attempt is made.
func (a *Assistant) ProcessInput(ctx context.Context, sessionID, text string) Reply {
	started := time.Now()
	fmt.Fprintf(a.out, "🎙️ %s\n", text)

	response := a.responder.Respond(ctx, sessionID, text)
	fmt.Fprintf(a.out, "🤖 %s\n", response)

	reply := Reply{Response: response, Result: a.speaker.DeliverDetailed(ctx, response)}
	if reply.Result.Outcome == delivery.Failed && a.opts.SlowRetry {
		reply.SlowRetried = true
		if a.speaker.SpeakWithOptions(ctx, response, true, "", a.opts.SlowRetryVolume) {
			reply.Result = delivery.Result{Outcome: delivery.Degraded, Strategy: "slow-retry", Played: 1, Attempted: reply.Result.Attempted + 1}
		} else {
			reply.Result.Attempted++
		}
	}
	if reply.Result.Outcome == delivery.Failed {
		fmt.Fprintln(a.out, "⚠️ Audio unavailable; the answer is shown above.")
	}

	if a.journal != nil {
		err := a.journal.Record(context.WithoutCancel(ctx), journal.Entry{
			SessionID: sessionID,
			Input:     text,
			Response:  response,
			Outcome:   reply.Result.Outcome.String(),
			Strategy:  reply.Result.Strategy,
			Played:    reply.Result.Played,
			Attempted: reply.Result.Attempted,
			Duration:  time.Since(started),
		})
		if err != nil {
			a.log.Warn("journal record failed", slog.String("error", err.Error()))
		}
	}
	return reply
}

// RunInteractive greets, then answers every utterance until a stop phrase,
// closed input or cancellation, and says goodbye.
func (a *Assistant) RunInteractive(ctx context.Context) error {
	id := a.newSession(ctx, "interactive")
	defer a.endSession(ctx, id)

	if a.opts.Greet {
		a.Say(ctx, a.phrases.Welcome)
	}
	fmt.Fprintf(a.out, "Listening. Say one of %s to stop.\n", strings.Join(a.opts.StopPhrases, ", "))

	failures := 0
	var runErr error
	for {
		if ctx.Err() != nil {
			break
		}
		tr, err := a.listener.Listen(ctx, a.opts.Listen)
		if err != nil {
			if errors.Is(err, stt.ErrNoSpeech) {
				failures = 0
				continue
			}
			if errors.Is(err, console.ErrClosed) || ctx.Err() != nil {
				break
			}
			failures++
			a.log.Warn("listen failed", slog.String("error", err.Error()), slog.Int("consecutive", failures))
			if failures >= maxListenErrors {
				runErr = fmt.Errorf("listener keeps failing: %w", err)
				break
			}
			continue
		}
		failures = 0
		if stt.ContainsStopPhrase(tr.Text, a.opts.StopPhrases) {
			a.log.Info("stop phrase heard", slog.String("text", tr.Text))
			break
		}
		a.ProcessInput(ctx, id, tr.Text)
	}

	a.Say(context.WithoutCancel(ctx), a.phrases.Goodbye)
	return runErr
}

// RunOnce greets, listens once with a longer window and answers, or
// apologizes when nothing was heard.
func (a *Assistant) RunOnce(ctx context.Context) error {
	id := a.newSession(ctx, "once")
	defer a.endSession(ctx, id)

	if a.opts.Greet {
		a.Say(ctx, a.phrases.Welcome)
	}
	tr, err := a.listener.Listen(ctx, OnceListen)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			fmt.Fprintln(a.out, "⚠️ No speech detected.")
			a.Say(ctx, a.phrases.NotHeard)
			return nil
		}
		a.Say(ctx, a.phrases.NotHeard)
		return err
	}
	a.ProcessInput(ctx, id, tr.Text)
	return nil
}

// SelfTestReport has one entry per component checked.
type SelfTestReport struct {
	Synthesis   delivery.Outcome
	Response    string
	Heard       string
	ListenError error
}

// Passed is true when audio played and something was heard.
func (r SelfTestReport) Passed() bool {
	return r.Synthesis != delivery.Failed && r.ListenError == nil && r.Heard != ""
}

// SelfTest exercises synthesis, the language model and the listener in turn.
func (a *Assistant) SelfTest(ctx context.Context) SelfTestReport {
	id := a.newSession(ctx, "selftest")
	defer a.endSession(ctx, id)

	var report SelfTestReport
	fmt.Fprintln(a.out, "1. Speech synthesis")
	report.Synthesis = a.Say(ctx, a.phrases.SelfTest)

	fmt.Fprintln(a.out, "2. Language model")
	report.Response = a.responder.Respond(ctx, id, a.phrases.TestQuestion)
	fmt.Fprintf(a.out, "🤖 %s\n", report.Response)

	fmt.Fprintln(a.out, "3. Speech recognition: say something in the next 5 seconds")
	tr, err := a.listener.Listen(ctx, SelfTestListen)
	if err != nil {
		report.ListenError = err
		fmt.Fprintf(a.out, "⚠️ %v\n", err)
	} else {
		report.Heard = tr.Text
		fmt.Fprintf(a.out, "🎙️ %s\n", tr.Text)
	}

	if report.Passed() {
		fmt.Fprintln(a.out, "✅ All components working")
	}
	a.log.Info("self-test finished",
		slog.String("synthesis", report.Synthesis.String()),
		slog.Bool("heard", report.Heard != ""),
		slog.Bool("passed", report.Passed()))
	return report
}

// Close releases audio resources and the listener. Later calls do nothing.
func (a *Assistant) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := errors.Join(a.speaker.Cleanup(), a.listener.Close())
	fmt.Fprintln(a.out, "🧹 Resources released.")
	return err
}
