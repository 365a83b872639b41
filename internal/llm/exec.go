package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// execGenerator runs a local inference command per prompt. The command gets
// a JSON request on stdin and prints {"content": ...}. A {model} placeholder
// is replaced with the model file path.
type execGenerator struct {
	cmd   []string
	model string
	mu    sync.Mutex
}

type execRequest struct {
	Prompt            string  `json:"prompt"`
	System            string  `json:"system,omitempty"`
	Model             string  `json:"model,omitempty"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	ContextLength     int     `json:"context_length,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
}

type execResponse struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

func NewExecGenerator(command, modelPath string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("llm command empty")
	}
	return &execGenerator{cmd: args, model: modelPath}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	model := req.Model
	if g.model != "" {
		model = g.model
	}
	input, err := json.Marshal(execRequest{
		Prompt:            req.Prompt,
		System:            req.System,
		Model:             model,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		ContextLength:     req.ContextLength,
		RepetitionPenalty: req.RepetitionPenalty,
	})
	if err != nil {
		return err
	}

	args := make([]string, 0, len(g.cmd)-1)
	for _, arg := range g.cmd[1:] {
		args = append(args, strings.ReplaceAll(arg, "{model}", model))
	}
	started := time.Now()
	cmd := exec.CommandContext(ctx, g.cmd[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("llm exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return fmt.Errorf("decode llm exec response: %w", err)
	}
	return consumer(Chunk{
		SessionID:        req.SessionID,
		Content:          resp.Content,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Latency:          time.Since(started),
	})
}
