package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Adapter turns text into audio through an Engine using its current Settings.
type Adapter struct {
	engine    Engine
	languages map[string]struct{}

	mu       sync.Mutex
	settings Settings
}

// NewAdapter builds an adapter. An empty languages list accepts any non-empty code.
func NewAdapter(engine Engine, settings Settings, languages []string) *Adapter {
	set := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		if code := normalizeLanguage(lang); code != "" {
			set[code] = struct{}{}
		}
	}
	return &Adapter{engine: engine, languages: set, settings: clampSettings(settings)}
}

// Settings returns a copy of the current configuration.
func (a *Adapter) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Override replaces the configuration and returns a func restoring the previous one.
// Zero-valued Language keeps the current language.
func (a *Adapter) Override(s Settings) (restore func()) {
	a.mu.Lock()
	prev := a.settings
	if strings.TrimSpace(s.Language) == "" {
		s.Language = prev.Language
	}
	a.settings = clampSettings(s)
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.settings = prev
			a.mu.Unlock()
		})
	}
}

// SetLanguage changes the synthesis language.
func (a *Adapter) SetLanguage(language string) error {
	if !a.Supports(language) {
		return fmt.Errorf("%w: unsupported language %q", ErrSynthesis, language)
	}
	a.mu.Lock()
	a.settings.Language = language
	a.mu.Unlock()
	return nil
}

// Supports reports whether the language code is recognized.
func (a *Adapter) Supports(language string) bool {
	code := normalizeLanguage(language)
	if code == "" {
		return false
	}
	if len(a.languages) == 0 {
		return true
	}
	_, ok := a.languages[code]
	return ok
}

// Synthesize converts text using the current settings.
func (a *Adapter) Synthesize(ctx context.Context, text string) (Artifact, error) {
	req, err := a.request(text)
	if err != nil {
		return Artifact{}, err
	}
	art, err := a.engine.Synthesize(ctx, req)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if len(art.Data) == 0 {
		return Artifact{}, fmt.Errorf("%w: engine returned no audio", ErrSynthesis)
	}
	if art.Format == "" {
		art.Format = FormatMP3
	}
	return art, nil
}

// SynthesizeTo writes the artifact for text into w and returns its format. Engines
// without streaming support are buffered through Synthesize.
func (a *Adapter) SynthesizeTo(ctx context.Context, text string, w io.Writer) (string, error) {
	req, err := a.request(text)
	if err != nil {
		return "", err
	}
	if streamer, ok := a.engine.(StreamEngine); ok {
		var counter countingWriter
		format, err := streamer.SynthesizeTo(ctx, req, io.MultiWriter(w, &counter))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
		}
		if counter.n == 0 {
			return "", fmt.Errorf("%w: engine returned no audio", ErrSynthesis)
		}
		if format == "" {
			format = FormatMP3
		}
		return format, nil
	}
	art, err := a.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, bytes.NewReader(art.Data)); err != nil {
		return "", fmt.Errorf("%w: write audio: %w", ErrSynthesis, err)
	}
	return art.Format, nil
}

func (a *Adapter) request(text string) (Request, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Request{}, fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	settings := a.Settings()
	if !a.Supports(settings.Language) {
		return Request{}, fmt.Errorf("%w: unsupported language %q", ErrSynthesis, settings.Language)
	}
	return Request{Text: trimmed, Language: settings.Language, Slow: settings.Slow}, nil
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", "-"))
}

func clampSettings(s Settings) Settings {
	if s.Volume < 0 {
		s.Volume = 0
	}
	if s.Volume > 1 {
		s.Volume = 1
	}
	return s
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
