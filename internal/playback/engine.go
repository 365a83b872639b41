package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultGrace        = 200 * time.Millisecond
)

// Engine plays one file at a time on a device it does not own and blocks until
// playback ends.
type Engine struct {
	device Device
	poll   time.Duration
	grace  time.Duration
	sleep  func(time.Duration)
	log    *slog.Logger
}

type EngineOption func(*Engine)

func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.poll = d
		}
	}
}

func WithGrace(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// WithSleep replaces time.Sleep, mostly for tests.
func WithSleep(sleep func(time.Duration)) EngineOption {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func NewEngine(device Device, log *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		device: device,
		poll:   DefaultPollInterval,
		grace:  DefaultGrace,
		sleep:  time.Sleep,
		log:    log.With(slog.String("component", "playback")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetVolume forwards the level to the device.
func (e *Engine) SetVolume(level float64) error {
	if err := e.device.SetVolume(level); err != nil {
		return fmt.Errorf("%w: set volume: %w", ErrPlayback, err)
	}
	return nil
}

// Play loads path, plays it and waits for completion. The device is always
// stopped and unloaded before returning so it holds no lock on the file.
func (e *Engine) Play(path string) error {
	if err := e.device.Load(path); err != nil {
		e.release()
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	if err := e.device.Play(); err != nil {
		e.release()
		return fmt.Errorf("%w: start: %w", ErrPlayback, err)
	}
	for {
		busy, err := e.device.Busy()
		if err != nil {
			e.release()
			return fmt.Errorf("%w: %w", ErrPlayback, err)
		}
		if !busy {
			break
		}
		e.sleep(e.poll)
	}
	e.sleep(e.grace)
	if err := e.release(); err != nil {
		e.log.Warn("device release after playback failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return nil
}

func (e *Engine) release() error {
	return errors.Join(e.device.Stop(), e.device.Unload())
}
