package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/speech"
	"github.com/loqalabs/loqa-voice/internal/tempaudio"
)

// scriptedEngine produces silent WAV audio unless fail says otherwise.
type scriptedEngine struct {
	mu       sync.Mutex
	fail     func(req speech.Request) error
	corrupt  bool
	panicky  bool
	requests []speech.Request
}

func (e *scriptedEngine) Synthesize(ctx context.Context, req speech.Request) (speech.Artifact, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.panicky {
		panic("engine exploded")
	}
	if e.fail != nil {
		if err := e.fail(req); err != nil {
			return speech.Artifact{}, err
		}
	}
	if e.corrupt {
		return speech.Artifact{Data: []byte("definitely not audio"), Format: speech.FormatWAV}, nil
	}
	data, err := speech.EncodeSilence(16000, 10*time.Millisecond)
	if err != nil {
		return speech.Artifact{}, err
	}
	return speech.Artifact{Data: data, Format: speech.FormatWAV}, nil
}

func (e *scriptedEngine) texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.requests))
	for _, r := range e.requests {
		out = append(out, r.Text)
	}
	return out
}

func failContaining(word string) func(speech.Request) error {
	return func(req speech.Request) error {
		if strings.Contains(req.Text, word) {
			return errors.New("engine rejected " + word)
		}
		return nil
	}
}

// streamingEngine writes audio into the writer it is handed. Texts containing
// "boom" fail after a partial header has been written.
type streamingEngine struct {
	mu       sync.Mutex
	streamed []string
	buffered int
}

func (e *streamingEngine) Synthesize(context.Context, speech.Request) (speech.Artifact, error) {
	e.mu.Lock()
	e.buffered++
	e.mu.Unlock()
	return speech.Artifact{}, errors.New("buffered synthesis not expected")
}

func (e *streamingEngine) SynthesizeTo(_ context.Context, req speech.Request, w io.Writer) (string, error) {
	e.mu.Lock()
	e.streamed = append(e.streamed, req.Text)
	e.mu.Unlock()
	if strings.Contains(req.Text, "boom") {
		_, _ = io.WriteString(w, "RIFF")
		return "", errors.New("stream cut")
	}
	data, err := speech.EncodeSilence(16000, 10*time.Millisecond)
	if err != nil {
		return "", err
	}
	_, err = w.Write(data)
	return speech.FormatWAV, err
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == d {
			n++
		}
	}
	return n
}

// lockedFS fails the first failures removals, like a player that has not yet
// let go of the file.
type lockedFS struct {
	tempaudio.OS
	mu       sync.Mutex
	failures int
	removes  int
}

func (l *lockedFS) Remove(name string) error {
	l.mu.Lock()
	l.removes++
	fail := l.removes <= l.failures
	l.mu.Unlock()
	if fail {
		return errors.New("sharing violation")
	}
	return l.OS.Remove(name)
}

type fixture struct {
	orch    *Orchestrator
	engine  *scriptedEngine
	adapter *speech.Adapter
	device  *playback.MockDevice
	sleeps  *sleepRecorder
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, engine *scriptedEngine, mutate func(*Options)) *fixture {
	t.Helper()
	f := newEngineFixture(t, engine, mutate)
	f.engine = engine
	return f
}

func newEngineFixture(t *testing.T, engine speech.Engine, mutate func(*Options)) *fixture {
	t.Helper()
	adapter := speech.NewAdapter(engine, speech.Settings{Language: "pt-br", Volume: 1}, []string{"pt-br", "en"})
	device, err := playback.OpenMockDevice(playback.DeviceConfig{SampleRate: 16000, BitDepth: 16, Channels: 1, BufferSize: 512}, 2)
	require.NoError(t, err)

	sleeps := &sleepRecorder{}
	logs := &bytes.Buffer{}
	opts := Options{
		TempDir:      t.TempDir(),
		PollInterval: 7 * time.Millisecond,
		Grace:        13 * time.Millisecond,
		Sleep:        sleeps.sleep,
		Logger:       slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if mutate != nil {
		mutate(&opts)
	}
	orch, err := New(adapter, func() (playback.Device, error) { return device, nil }, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Cleanup() })
	return &fixture{orch: orch, adapter: adapter, device: device, sleeps: sleeps, logs: logs}
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestDeliverDirectSucceeds(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)

	res := f.orch.DeliverDetailed(context.Background(), "  Bom dia. Tudo bem?  ")
	assert.Equal(t, Succeeded, res.Outcome)
	assert.Equal(t, StrategyDirect, res.Strategy)
	assert.Equal(t, 1, res.Played)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, []string{"Bom dia. Tudo bem?"}, f.engine.texts())

	require.Len(t, f.device.Played(), 1)
	assert.NoFileExists(t, f.device.Played()[0])
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
	assert.Equal(t, 0, f.sleeps.count(DefaultSentencePause))
}

func TestDeliverFallsBackToSentences(t *testing.T) {
	f := newFixture(t, &scriptedEngine{fail: failContaining("boom")}, nil)

	res := f.orch.DeliverDetailed(context.Background(), "Hello world. boom boom! Fine day.")
	assert.Equal(t, Degraded, res.Outcome)
	assert.Equal(t, StrategySentences, res.Strategy)
	assert.Equal(t, 2, res.Played)
	assert.Equal(t, 4, res.Attempted)
	assert.Equal(t, []string{"Hello world. boom boom! Fine day.", "Hello world", "boom boom", "Fine day"}, f.engine.texts())
	assert.Equal(t, 2, f.sleeps.count(DefaultSentencePause))
	assert.Len(t, f.device.Played(), 2)
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
}

func TestDeliverFallsBackToPhrase(t *testing.T) {
	engine := &scriptedEngine{fail: func(req speech.Request) error {
		if req.Text == DefaultFallbackPhrase {
			return nil
		}
		return errors.New("network down")
	}}
	f := newFixture(t, engine, nil)

	res := f.orch.DeliverDetailed(context.Background(), "First sentence. Second sentence.")
	assert.Equal(t, Degraded, res.Outcome)
	assert.Equal(t, StrategyFallbackPhrase, res.Strategy)
	assert.Equal(t, 1, res.Played)
	assert.Equal(t, 4, res.Attempted)
	assert.Contains(t, f.logs.String(), "delivery strategy failed")
}

func TestDeliverExhaustionFailsAndLeavesNoFiles(t *testing.T) {
	// Synthesis fails for every input.
	f := newFixture(t, &scriptedEngine{fail: func(speech.Request) error { return errors.New("offline") }}, nil)
	assert.Equal(t, Failed, f.orch.Deliver(context.Background(), "One sentence here. Another one here."))
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))

	// Synthesis produces audio the device cannot load.
	f = newFixture(t, &scriptedEngine{corrupt: true}, nil)
	res := f.orch.DeliverDetailed(context.Background(), "One sentence here. Another one here.")
	assert.Equal(t, Failed, res.Outcome)
	assert.Empty(t, res.Strategy)
	assert.Equal(t, 4, res.Attempted)
	assert.Empty(t, f.device.Played())
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
}

func TestDeliverNeverPanics(t *testing.T) {
	f := newFixture(t, &scriptedEngine{panicky: true}, nil)
	assert.NotPanics(t, func() {
		assert.Equal(t, Failed, f.orch.Deliver(context.Background(), "Some text to say."))
	})
	assert.Contains(t, f.logs.String(), "panicked")
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
}

func TestDeliverEmptyTextFails(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)
	assert.Equal(t, Failed, f.orch.Deliver(context.Background(), "   \n"))
	assert.Empty(t, f.engine.texts())
}

func TestDeliverStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Failed, f.orch.Deliver(ctx, "Never spoken."))
	assert.Empty(t, f.engine.texts())
}

func TestDeliverToleratesTransientDeleteLock(t *testing.T) {
	fsys := &lockedFS{failures: 4}
	f := newFixture(t, &scriptedEngine{}, func(o *Options) { o.FS = fsys })

	assert.Equal(t, Succeeded, f.orch.Deliver(context.Background(), "Locked for a moment."))
	assert.Equal(t, 5, fsys.removes)
	for _, d := range []time.Duration{100, 200, 300, 400} {
		assert.Equal(t, 1, f.sleeps.count(d*time.Millisecond), "backoff %v", d)
	}
	assert.NotContains(t, f.logs.String(), "leaked")
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
}

func TestDeleteLeakDoesNotChangeOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	fsys := &lockedFS{failures: 1000}
	f := newFixture(t, &scriptedEngine{}, func(o *Options) {
		o.FS = fsys
		o.Meter = provider.Meter("test")
	})

	assert.Equal(t, Succeeded, f.orch.Deliver(context.Background(), "This file stays locked."))
	assert.Contains(t, f.logs.String(), "temp file leaked")
	assert.Len(t, dirEntries(t, f.orch.TempDir()), 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterTotal(rm, "loqa_voice_tempfile_leaks"))
	assert.Equal(t, int64(1), counterTotal(rm, "loqa_voice_deliveries"))

	// Directory removal reclaims the leaked file.
	dir := f.orch.TempDir()
	require.NoError(t, f.orch.Cleanup())
	assert.NoDirExists(t, dir)
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestSpeakWithOptionsRestoresSettings(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)
	before := f.adapter.Settings()

	ok := f.orch.SpeakWithOptions(context.Background(), "Speak slowly please.", true, "en", 0.5)
	assert.True(t, ok)
	assert.Equal(t, before, f.adapter.Settings())
	assert.InDelta(t, 0.5, f.device.Volume(), 1e-9)

	f.engine.mu.Lock()
	last := f.engine.requests[len(f.engine.requests)-1]
	f.engine.mu.Unlock()
	assert.True(t, last.Slow)
	assert.Equal(t, "en", last.Language)

	f.engine.fail = func(speech.Request) error { return errors.New("quota exceeded") }
	ok = f.orch.SpeakWithOptions(context.Background(), "Speak slowly please.", true, "en", 0.2)
	assert.False(t, ok)
	assert.Equal(t, before, f.adapter.Settings())

	// Unsupported languages fail synthesis and still restore.
	f.engine.fail = nil
	assert.False(t, f.orch.SpeakWithOptions(context.Background(), "Hola amigo.", false, "xx", 1))
	assert.Equal(t, before, f.adapter.Settings())
}

func TestSpeakWithOptionsRestoresAfterPanic(t *testing.T) {
	f := newFixture(t, &scriptedEngine{panicky: true}, nil)
	before := f.adapter.Settings()
	assert.False(t, f.orch.SpeakWithOptions(context.Background(), "Boom.", true, "en", 0.1))
	assert.Equal(t, before, f.adapter.Settings())
}

func TestCleanupIsIdempotent(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)
	dir := f.orch.TempDir()
	require.DirExists(t, dir)

	require.NoError(t, f.orch.Cleanup())
	assert.NoDirExists(t, dir)
	require.NoError(t, f.orch.Cleanup())

	assert.Equal(t, Failed, f.orch.Deliver(context.Background(), "After cleanup."))
	assert.False(t, f.orch.SpeakWithOptions(context.Background(), "After cleanup.", false, "", 1))
	require.ErrorIs(t, f.device.Load("x.wav"), playback.ErrDeviceClosed)
}

func TestNewFailsWithoutDevice(t *testing.T) {
	adapter := speech.NewAdapter(&scriptedEngine{}, speech.Settings{Language: "en", Volume: 1}, nil)
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(adapter, func() (playback.Device, error) { return nil, errors.New("no sound card") },
		Options{TempDir: t.TempDir(), Logger: discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sound card")

	device, err := playback.OpenMockDevice(playback.DeviceConfig{SampleRate: 8000, BitDepth: 16, Channels: 1}, 0)
	require.NoError(t, err)
	_, err = New(adapter, func() (playback.Device, error) { return device, nil },
		Options{TempDir: "/nonexistent/loqa/voice", Logger: discard})
	require.ErrorIs(t, err, tempaudio.ErrTempFile)
	require.ErrorIs(t, device.Load("x.wav"), playback.ErrDeviceClosed)
}

func TestCallsAreSerialized(t *testing.T) {
	f := newFixture(t, &scriptedEngine{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orch.Deliver(context.Background(), "Concurrent caller.")
		}()
	}
	wg.Wait()
	assert.Len(t, f.device.Played(), 4)
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
}

func TestDeliverStreamsAudioIntoTempFiles(t *testing.T) {
	engine := &streamingEngine{}
	f := newEngineFixture(t, engine, nil)

	res := f.orch.DeliverDetailed(context.Background(), "Hello world. boom boom! Fine day.")
	assert.Equal(t, Degraded, res.Outcome)
	assert.Equal(t, StrategySentences, res.Strategy)
	assert.Equal(t, 2, res.Played)
	assert.Equal(t, 4, res.Attempted)

	engine.mu.Lock()
	assert.Equal(t, []string{"Hello world. boom boom! Fine day.", "Hello world", "boom boom", "Fine day"}, engine.streamed)
	assert.Zero(t, engine.buffered)
	engine.mu.Unlock()

	played := f.device.Played()
	require.Len(t, played, 2)
	for _, p := range played {
		assert.Equal(t, ".wav", filepath.Ext(p))
		assert.Equal(t, f.orch.TempDir(), filepath.Dir(p))
	}
	assert.Empty(t, dirEntries(t, f.orch.TempDir()))
	assert.Contains(t, f.logs.String(), "stage=synthesis")
}
