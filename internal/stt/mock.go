package stt

import (
	"context"
	"sync"

	"github.com/loqalabs/loqa-voice/internal/console"
)

// MockListener returns scripted utterances in order; an empty entry means
// silence. Once exhausted it reports console.ErrClosed.
type MockListener struct {
	mu      sync.Mutex
	script  []string
	Options []ListenOptions
}

func NewMockListener(script ...string) *MockListener {
	return &MockListener{script: script}
}

func (m *MockListener) Listen(ctx context.Context, opts ListenOptions) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Options = append(m.Options, opts)
	if len(m.script) == 0 {
		return Transcript{}, console.ErrClosed
	}
	text := m.script[0]
	m.script = m.script[1:]
	if text == "" {
		return Transcript{}, ErrNoSpeech
	}
	return Transcript{Text: text, Confidence: 1}, nil
}

func (m *MockListener) Close() error { return nil }
