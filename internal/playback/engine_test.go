package playback

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/speech"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testFormat = DeviceConfig{SampleRate: 16000, BitDepth: 16, Channels: 1, BufferSize: 512}

func writeWav(t *testing.T, dir string) string {
	t.Helper()
	data, err := speech.EncodeSilence(16000, 50*time.Millisecond)
	require.NoError(t, err)
	path := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

type recordingSleep struct{ calls []time.Duration }

func (r *recordingSleep) sleep(d time.Duration) { r.calls = append(r.calls, d) }

func TestEnginePollsUntilDoneThenGraceWaits(t *testing.T) {
	dev, err := OpenMockDevice(testFormat, 3)
	require.NoError(t, err)
	rec := &recordingSleep{}
	engine := NewEngine(dev, newLogger(), WithSleep(rec.sleep))

	path := writeWav(t, t.TempDir())
	require.NoError(t, engine.Play(path))

	assert.Equal(t, []time.Duration{
		DefaultPollInterval, DefaultPollInterval, DefaultPollInterval, DefaultGrace,
	}, rec.calls)
	assert.Equal(t, []string{path}, dev.Played())
	assert.Empty(t, dev.loaded, "device must be unloaded after playback")
}

func TestEngineRejectsCorruptFile(t *testing.T) {
	dev, err := OpenMockDevice(testFormat, 1)
	require.NoError(t, err)
	engine := NewEngine(dev, newLogger(), WithSleep(func(time.Duration) {}))

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0o600))

	err = engine.Play(path)
	require.ErrorIs(t, err, ErrPlayback)
	assert.Empty(t, dev.Played())

	err = engine.Play(filepath.Join(t.TempDir(), "missing.mp3"))
	require.ErrorIs(t, err, ErrPlayback)
}

type failingDevice struct {
	MockDevice
	busyErr  error
	stops    int
	unloads  int
	playFail bool
}

func (f *failingDevice) Load(string) error { return nil }
func (f *failingDevice) Play() error {
	if f.playFail {
		return errors.New("device busy")
	}
	return nil
}
func (f *failingDevice) Busy() (bool, error) { return false, f.busyErr }
func (f *failingDevice) Stop() error          { f.stops++; return nil }
func (f *failingDevice) Unload() error        { f.unloads++; return nil }

func TestEngineReleasesDeviceOnFailure(t *testing.T) {
	dev := &failingDevice{playFail: true}
	engine := NewEngine(dev, newLogger(), WithSleep(func(time.Duration) {}))
	require.ErrorIs(t, engine.Play("x.wav"), ErrPlayback)
	assert.Equal(t, 1, dev.stops)
	assert.Equal(t, 1, dev.unloads)

	dev = &failingDevice{busyErr: errors.New("underrun")}
	engine = NewEngine(dev, newLogger(), WithSleep(func(time.Duration) {}))
	require.ErrorIs(t, engine.Play("x.wav"), ErrPlayback)
	assert.Equal(t, 1, dev.stops)
	assert.Equal(t, 1, dev.unloads)
}

func TestMockDeviceClosed(t *testing.T) {
	dev, err := OpenMockDevice(testFormat, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	require.ErrorIs(t, dev.Load("x.wav"), ErrDeviceClosed)
	require.ErrorIs(t, dev.SetVolume(0.5), ErrDeviceClosed)

	_, err = OpenMockDevice(DeviceConfig{}, 1)
	require.Error(t, err)
}

func TestProbeSniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	data, err := speech.EncodeSilence(8000, 20*time.Millisecond)
	require.NoError(t, err)
	path := filepath.Join(dir, "clip.audio")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	require.NoError(t, Probe(path))

	junk := filepath.Join(dir, "junk.audio")
	require.NoError(t, os.WriteFile(junk, []byte("hello"), 0o600))
	require.Error(t, Probe(junk))
}

func TestExecDevicePlaysWithPlayerCommand(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	dev, err := OpenExecDevice("true --volume {volume}", testFormat, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	require.NoError(t, dev.SetVolume(0.25))
	assert.Equal(t, []string{dev.args[0], "--volume", "25", "a.wav"}, dev.expand("a.wav"))

	engine := NewEngine(dev, newLogger(), WithPollInterval(5*time.Millisecond), WithGrace(0))
	require.NoError(t, engine.Play(writeWav(t, t.TempDir())))

	require.NoError(t, dev.Close())
	require.ErrorIs(t, dev.Play(), ErrDeviceClosed)
}

func TestExecDeviceReportsPlayerFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	dev, err := OpenExecDevice("false", testFormat, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	engine := NewEngine(dev, newLogger(), WithPollInterval(5*time.Millisecond), WithGrace(0))
	require.ErrorIs(t, engine.Play(writeWav(t, t.TempDir())), ErrPlayback)
}

func TestOpenExecDeviceMissingPlayer(t *testing.T) {
	_, err := OpenExecDevice("definitely-not-a-player-binary", testFormat, newLogger())
	require.Error(t, err)
}
