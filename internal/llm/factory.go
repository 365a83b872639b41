package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// ErrNoModel is returned when the model directory holds no .gguf file.
var ErrNoModel = errors.New("no model found")

// FindModel returns the first *.gguf file in dir, by name.
func FindModel(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: directory %s does not exist", ErrNoModel, dir)
		}
		return "", err
	}
	var models []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			models = append(models, e.Name())
		}
	}
	if len(models) == 0 {
		return "", fmt.Errorf("%w in %s; download a .gguf model first", ErrNoModel, dir)
	}
	sort.Strings(models)
	return filepath.Join(dir, models[0]), nil
}

// NewGenerator builds the backend selected by llm.mode.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	case "exec":
		model := ""
		if cfg.ModelDir != "" {
			path, err := FindModel(cfg.ModelDir)
			if err != nil {
				return nil, err
			}
			model = path
		}
		return NewExecGenerator(cfg.Command, model)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}
