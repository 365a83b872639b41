package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"mixed punctuation", "Hello world. How are you? Fine!", []string{"Hello world", "How are you", "Fine"}},
		{"short fragments dropped", "Hi. OK. This is fine.", []string{"This is fine"}},
		{"boundary length kept", "abc. abcd.", []string{"abcd"}},
		{"runs of delimiters", "Wait... what?! Really", []string{"Wait", "what", "Really"}},
		{"accented text counts runes", "Olá. Ação! Não sei.", []string{"Ação", "Não sei"}},
		{"nothing usable", "?!.", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitSentences(tc.text, DefaultMinSentenceLength))
		})
	}
}

func TestDefaultStrategiesOrder(t *testing.T) {
	strategies := DefaultStrategies(4, DefaultSentencePause, "fallback")
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StrategyDirect, StrategySentences, StrategyFallbackPhrase}, names)
	assert.Equal(t, Succeeded, strategies[0].Outcome)
	assert.Equal(t, Degraded, strategies[1].Outcome)
	assert.Equal(t, Degraded, strategies[2].Outcome)
	assert.Equal(t, DefaultSentencePause, strategies[1].Pause)

	assert.Equal(t, []string{"whole text. Here"}, strategies[0].Pieces("whole text. Here"))
	assert.Equal(t, []string{"fallback"}, strategies[2].Pieces("anything"))
	assert.Empty(t, DefaultStrategies(4, 0, "  ")[2].Pieces("anything"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.FallbackPhrase = ""
	cfg.Delivery.DeleteAttempts = 3
	cfg.Delivery.DeleteBackoffMS = 50

	opts := OptionsFromConfig(cfg.Delivery, cfg.Playback, nil)
	assert.Equal(t, "loqa_voice_", opts.TempPrefix)
	assert.Equal(t, 100*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 200*time.Millisecond, opts.Grace)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.Retry.Backoff(2))
	assert.Equal(t, 500*time.Millisecond, opts.Strategies[1].Pause)
	assert.Equal(t, []string{DefaultFallbackPhrase}, opts.Strategies[2].Pieces("x"))
}
