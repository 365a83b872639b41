package playback

import (
	"fmt"
	"sync"
)

// MockDevice validates artifacts like a real device and reports busy for a fixed
// number of polls after Play.
type MockDevice struct {
	cfg   DeviceConfig
	polls int

	mu        sync.Mutex
	loaded    string
	remaining int
	volume    float64
	closed    bool
	played    []string
}

func OpenMockDevice(cfg DeviceConfig, pollsPerPlay int) (*MockDevice, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MockDevice{cfg: cfg, polls: pollsPerPlay, volume: 1}, nil
}

func (m *MockDevice) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceClosed
	}
	if err := Probe(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	m.loaded = path
	return nil
}

func (m *MockDevice) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceClosed
	}
	if m.loaded == "" {
		return ErrNotLoaded
	}
	m.remaining = m.polls
	m.played = append(m.played, m.loaded)
	return nil
}

func (m *MockDevice) Busy() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remaining > 0 {
		m.remaining--
		return true, nil
	}
	return false, nil
}

func (m *MockDevice) Stop() error {
	m.mu.Lock()
	m.remaining = 0
	m.mu.Unlock()
	return nil
}

func (m *MockDevice) Unload() error {
	m.mu.Lock()
	m.loaded = ""
	m.mu.Unlock()
	return nil
}

func (m *MockDevice) SetVolume(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceClosed
	}
	m.volume = clampVolume(level)
	return nil
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	m.closed = true
	m.loaded = ""
	m.mu.Unlock()
	return nil
}

// Played lists every path passed to a successful Play.
func (m *MockDevice) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}

func (m *MockDevice) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func clampVolume(level float64) float64 {
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
