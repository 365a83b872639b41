package delivery

import (
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/tempaudio"
)

// OptionsFromConfig maps the delivery and playback sections onto Options.
func OptionsFromConfig(d config.DeliveryConfig, p config.PlaybackConfig, log *slog.Logger) Options {
	fallback := d.FallbackPhrase
	if fallback == "" {
		fallback = DefaultFallbackPhrase
	}
	minLen := d.MinSentenceLength
	if minLen <= 0 {
		minLen = DefaultMinSentenceLength
	}
	pause := DefaultSentencePause
	if d.SentencePauseMS > 0 {
		pause = time.Duration(d.SentencePauseMS) * time.Millisecond
	}
	retry := tempaudio.DefaultRetryPolicy()
	if d.DeleteAttempts > 0 {
		retry.MaxAttempts = d.DeleteAttempts
	}
	if d.DeleteBackoffMS > 0 {
		retry.Backoff = tempaudio.LinearBackoff(time.Duration(d.DeleteBackoffMS) * time.Millisecond)
	}
	return Options{
		TempDir:      d.TempDir,
		TempPrefix:   d.TempPrefix,
		Retry:        retry,
		PollInterval: time.Duration(p.PollIntervalMS) * time.Millisecond,
		Grace:        time.Duration(p.GraceMS) * time.Millisecond,
		Strategies:   DefaultStrategies(minLen, pause, fallback),
		Logger:       log,
	}
}
