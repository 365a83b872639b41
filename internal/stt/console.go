package stt

import (
	"context"

	"github.com/loqalabs/loqa-voice/internal/console"
)

// consoleListener takes typed text instead of microphone input. Timeouts do
// not apply; a blank line counts as silence.
type consoleListener struct {
	in     console.LineReader
	prompt string
}

func NewConsoleListener(in console.LineReader, prompt string) Listener {
	if prompt == "" {
		prompt = "você> "
	}
	return &consoleListener{in: in, prompt: prompt}
}

func (c *consoleListener) Listen(ctx context.Context, _ ListenOptions) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	line, err := c.in.ReadLine(c.prompt)
	if err != nil {
		return Transcript{}, err
	}
	if line == "" {
		return Transcript{}, ErrNoSpeech
	}
	return Transcript{Text: line, Confidence: 1}, nil
}

// Close leaves the shared line reader open for its owner.
func (c *consoleListener) Close() error { return nil }
