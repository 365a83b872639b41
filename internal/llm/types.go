package llm

import (
	"context"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	SessionID         string
	Prompt            string
	System            string
	Model             string
	MaxTokens         int
	Temperature       float64
	ContextLength     int
	RepetitionPenalty float64
}

// Chunk represents streamed model output.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// RequestFromConfig fills sampling defaults from config.
func RequestFromConfig(cfg config.LLMConfig) Request {
	return Request{
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		ContextLength:     cfg.ContextLength,
		RepetitionPenalty: cfg.RepetitionPenalty,
	}
}
