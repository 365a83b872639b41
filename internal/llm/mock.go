package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	delay time.Duration
}

// NewMockGenerator echoes the question back in two streamed chunks.
func NewMockGenerator() Generator { return &mockGenerator{delay: 20 * time.Millisecond} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.delay):
	}
	question := questionOf(req.Prompt)
	if err := consumer(Chunk{SessionID: req.SessionID, Content: "Você disse: ", Partial: true, Latency: m.delay}); err != nil {
		return err
	}
	return consumer(Chunk{
		SessionID: req.SessionID,
		Content:   strings.TrimRight(question, ".!?") + ".",
		Partial:   false,
		Latency:   m.delay,
	})
}

// questionOf picks the user question out of a rendered prompt.
func questionOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range questionMarkers {
			if rest, ok := strings.CutPrefix(line, marker); ok {
				return strings.TrimSpace(rest)
			}
		}
	}
	return strings.TrimSpace(prompt)
}
