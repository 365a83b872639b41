package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/tempaudio"
)

// execListener records with one command and transcribes with another. The
// capture command gets {output}, {timeout} and {limit} (seconds) and must
// leave a WAV file at {output}; the transcribe command receives --audio,
// --model and --language and prints {"text": ..., "confidence": ...}.
type execListener struct {
	capture []string
	command []string
	cfg     config.STTConfig
	dir     *tempaudio.Dir
	log     *slog.Logger
	mu      sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecListener(cfg config.STTConfig, log *slog.Logger) (Listener, error) {
	parser := shellwords.NewParser()
	capture, err := parser.Parse(cfg.CaptureCommand)
	if err != nil {
		return nil, fmt.Errorf("parse stt capture command: %w", err)
	}
	command, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(capture) == 0 || len(command) == 0 {
		return nil, fmt.Errorf("stt capture and transcribe commands must not be empty")
	}
	log = log.With(slog.String("component", "stt"))
	dir, err := tempaudio.New(nil, "", "loqa_stt_", tempaudio.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &execListener{capture: capture, command: command, cfg: cfg, dir: dir, log: log}, nil
}

func (l *execListener) Listen(ctx context.Context, opts ListenOptions) (Transcript, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	handle, err := l.dir.Create(nil, "wav")
	if err != nil {
		return Transcript{}, err
	}
	defer l.dir.Release(handle)

	if err := l.record(ctx, handle.Path, opts); err != nil {
		return Transcript{}, err
	}
	if !hasSpeech(handle.Path) {
		return Transcript{}, ErrNoSpeech
	}

	args := append([]string{}, l.command[1:]...)
	args = append(args, "--audio", handle.Path)
	if l.cfg.ModelPath != "" {
		args = append(args, "--model", l.cfg.ModelPath)
	}
	if l.cfg.Language != "" {
		args = append(args, "--language", l.cfg.Language)
	}
	cmd := exec.CommandContext(ctx, l.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Transcript{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode stt response: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Transcript{}, ErrNoSpeech
	}
	l.log.Info("speech recognized", slog.String("text", text), slog.Float64("confidence", resp.Confidence))
	return Transcript{Text: text, Confidence: resp.Confidence}, nil
}

func (l *execListener) record(ctx context.Context, output string, opts ListenOptions) error {
	replacer := strings.NewReplacer(
		"{output}", output,
		"{timeout}", strconv.Itoa(int(opts.Timeout.Seconds())),
		"{limit}", strconv.Itoa(int(opts.PhraseLimit.Seconds())),
	)
	args := make([]string, 0, len(l.capture)-1)
	for _, arg := range l.capture[1:] {
		args = append(args, replacer.Replace(arg))
	}
	if limit := opts.Timeout + opts.PhraseLimit; limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, l.capture[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: capture timed out", ErrNoSpeech)
		}
		return fmt.Errorf("capture command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// hasSpeech reports whether the capture left a decodable, non-empty WAV.
func hasSpeech(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return wav.NewDecoder(f).IsValidFile()
}

func (l *execListener) Close() error {
	return l.dir.Close()
}
