package stt

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoSpeech is returned when nothing intelligible was heard before the timeout.
var ErrNoSpeech = errors.New("no speech recognized")

// Transcript is recognizer output for one utterance.
type Transcript struct {
	Text       string
	Confidence float64
}

// ListenOptions bounds one listen call: Timeout is how long to wait for
// speech to start, PhraseLimit the longest utterance recorded.
type ListenOptions struct {
	Timeout     time.Duration
	PhraseLimit time.Duration
}

// Listener captures one utterance and returns its text.
type Listener interface {
	Listen(ctx context.Context, opts ListenOptions) (Transcript, error)
	Close() error
}

// ContainsStopPhrase reports whether text contains any stop phrase,
// ignoring case.
func ContainsStopPhrase(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" && strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
