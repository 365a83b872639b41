package playback

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voice/internal/config"
)

var (
	// ErrPlayback is reported for any load or device failure during playback.
	ErrPlayback = errors.New("audio playback failed")
	// ErrDeviceClosed is returned by devices used after Close.
	ErrDeviceClosed = errors.New("audio device closed")
	// ErrNotLoaded is returned when Play is called without a loaded file.
	ErrNotLoaded = errors.New("no audio loaded")
)

// DeviceConfig carries the output format the device is initialized with.
type DeviceConfig struct {
	SampleRate int
	BitDepth   int
	Channels   int
	BufferSize int
}

func (c DeviceConfig) validate() error {
	if c.SampleRate <= 0 || c.BitDepth <= 0 || c.Channels <= 0 {
		return fmt.Errorf("invalid device format %+v", c)
	}
	return nil
}

// Device is a single audio output. All calls are synchronous and a device plays
// at most one loaded file at a time.
type Device interface {
	Load(path string) error
	Play() error
	// Busy reports whether playback is still running. A non-nil error means the
	// device failed while playing.
	Busy() (bool, error)
	Stop() error
	Unload() error
	SetVolume(level float64) error
	Close() error
}

// OpenFunc initializes an output device.
type OpenFunc func() (Device, error)

// Opener returns the OpenFunc for playback.mode.
func Opener(cfg config.PlaybackConfig, log *slog.Logger) (OpenFunc, error) {
	devCfg := DeviceConfig{
		SampleRate: cfg.SampleRate,
		BitDepth:   cfg.BitDepth,
		Channels:   cfg.Channels,
		BufferSize: cfg.BufferSize,
	}
	switch cfg.Mode {
	case "", "mock":
		return func() (Device, error) { return OpenMockDevice(devCfg, 3) }, nil
	case "exec":
		return func() (Device, error) { return OpenExecDevice(cfg.Command, devCfg, log) }, nil
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}
