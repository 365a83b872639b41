package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"
)

var questionMarkers = []string{"Pergunta do usuário:", "User question:"}

var promptPT = template.Must(template.New("pt").Parse(`Você é um assistente de voz útil e amigável. Responda de forma clara, concisa e prestativa.

Instruções:
- Seja sempre educado e prestativo
- Mantenha as respostas relativamente curtas (máximo 2-3 frases)
- Se não souber algo, admita que não sabe
- Responda sempre em {{.Language}}

Pergunta do usuário: {{.Question}}

Resposta:`))

var promptEN = template.Must(template.New("en").Parse(`You are a helpful and friendly voice assistant. Answer clearly, concisely and helpfully.

Instructions:
- Always be polite and helpful
- Keep answers fairly short (2-3 sentences at most)
- If you do not know something, say so
- Always answer in {{.Language}}

User question: {{.Question}}

Answer:`))

var languageNames = map[string]string{
	"pt":    "português brasileiro",
	"pt-br": "português brasileiro",
	"en":    "English",
	"en-us": "English",
	"en-gb": "English",
	"es":    "Spanish",
	"fr":    "French",
	"de":    "German",
	"it":    "Italian",
}

var errEmptyResponse = errors.New("model returned an empty response")

// Responder turns a user question into a short spoken-style answer.
type Responder struct {
	gen      Generator
	base     Request
	prompt   *template.Template
	language string
	apology  string
	timeout  time.Duration
	log      *slog.Logger
}

// NewResponder picks the prompt and apology for language. timeout bounds a
// single generation; zero means no limit beyond the caller's context.
func NewResponder(gen Generator, base Request, language string, timeout time.Duration, log *slog.Logger) *Responder {
	code := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(language), "_", "-"))
	name, ok := languageNames[code]
	if !ok {
		name = language
	}
	r := &Responder{
		gen:      gen,
		base:     base,
		prompt:   promptEN,
		language: name,
		apology:  "Sorry, something went wrong while processing your question.",
		timeout:  timeout,
		log:      log.With(slog.String("component", "llm")),
	}
	if strings.HasPrefix(code, "pt") {
		r.prompt = promptPT
		r.apology = "Desculpe, ocorreu um erro ao processar sua pergunta."
	}
	return r
}

// Apology is what Respond returns when generation fails.
func (r *Responder) Apology() string { return r.apology }

// Respond never fails: generation errors and empty output yield the apology.
func (r *Responder) Respond(ctx context.Context, sessionID, question string) string {
	answer, err := r.Ask(ctx, sessionID, question)
	if err != nil {
		r.log.Warn("response generation failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return r.apology
	}
	return answer
}

// Ask renders the prompt, collects every chunk and returns the trimmed text.
func (r *Responder) Ask(ctx context.Context, sessionID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}
	var prompt strings.Builder
	if err := r.prompt.Execute(&prompt, struct{ Language, Question string }{r.language, question}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := r.base
	req.SessionID = sessionID
	req.Prompt = prompt.String()

	started := time.Now()
	var answer strings.Builder
	var completionTokens int
	err := r.gen.Generate(ctx, req, func(chunk Chunk) error {
		answer.WriteString(chunk.Content)
		completionTokens = chunk.CompletionTokens
		return nil
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(answer.String())
	if text == "" {
		return "", errEmptyResponse
	}
	r.log.Info("response generated",
		slog.String("session_id", sessionID),
		slog.Int("completion_tokens", completionTokens),
		slog.Duration("latency", time.Since(started)))
	return text, nil
}
