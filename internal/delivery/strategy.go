package delivery

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	StrategyDirect         = "direct"
	StrategySentences      = "sentences"
	StrategyFallbackPhrase = "fallback-phrase"

	DefaultMinSentenceLength = 4
	DefaultSentencePause     = 500 * time.Millisecond
)

// Strategy is one escalation step. Pieces turns the response into the texts to
// play in order; the strategy wins with Outcome as soon as any piece plays.
type Strategy struct {
	Name    string
	Outcome Outcome
	Pause   time.Duration
	Pieces  func(text string) []string
}

// DefaultStrategies returns direct delivery, then sentence by sentence, then
// the fixed fallback phrase.
func DefaultStrategies(minSentence int, pause time.Duration, fallback string) []Strategy {
	return []Strategy{
		{
			Name:    StrategyDirect,
			Outcome: Succeeded,
			Pieces:  func(text string) []string { return []string{text} },
		},
		{
			Name:    StrategySentences,
			Outcome: Degraded,
			Pause:   pause,
			Pieces:  func(text string) []string { return SplitSentences(text, minSentence) },
		},
		{
			Name:    StrategyFallbackPhrase,
			Outcome: Degraded,
			Pieces: func(string) []string {
				if strings.TrimSpace(fallback) == "" {
					return nil
				}
				return []string{fallback}
			},
		},
	}
}

// SplitSentences splits on '.', '!' and '?', trims each fragment and keeps
// those with at least minLength characters.
func SplitSentences(text string, minLength int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || utf8.RuneCountInString(f) < minLength {
			continue
		}
		out = append(out, f)
	}
	return out
}
