package stt

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/console"
	"github.com/loqalabs/loqa-voice/internal/speech"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func requireShell(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"sh", "cp", "true", "sleep"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}
}

func TestContainsStopPhrase(t *testing.T) {
	phrases := config.Default().STT.StopPhrases
	assert.True(t, ContainsStopPhrase("Tudo certo, pode PARAR agora", phrases))
	assert.True(t, ContainsStopPhrase("tchau", phrases))
	assert.False(t, ContainsStopPhrase("qual a previsão do tempo", phrases))
	assert.False(t, ContainsStopPhrase("qualquer coisa", []string{"", "  "}))
}

func TestConsoleListener(t *testing.T) {
	in := console.NewScript("olá assistente", "", "sair")
	l := NewConsoleListener(in, "")

	tr, err := l.Listen(context.Background(), ListenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "olá assistente", tr.Text)

	_, err = l.Listen(context.Background(), ListenOptions{})
	require.ErrorIs(t, err, ErrNoSpeech)

	tr, err = l.Listen(context.Background(), ListenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sair", tr.Text)

	_, err = l.Listen(context.Background(), ListenOptions{})
	require.ErrorIs(t, err, console.ErrClosed)
	assert.Equal(t, "você> ", in.Prompts[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Listen(ctx, ListenOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMockListenerRecordsOptions(t *testing.T) {
	m := NewMockListener("um", "")
	opts := ListenOptions{Timeout: 10 * time.Second, PhraseLimit: 15 * time.Second}
	tr, err := m.Listen(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "um", tr.Text)
	_, err = m.Listen(context.Background(), opts)
	require.ErrorIs(t, err, ErrNoSpeech)
	_, err = m.Listen(context.Background(), opts)
	require.ErrorIs(t, err, console.ErrClosed)
	assert.Equal(t, []ListenOptions{opts, opts, opts}, m.Options)
}

func writeFixture(t *testing.T) string {
	t.Helper()
	data, err := speech.EncodeSilence(16000, 100*time.Millisecond)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExecListenerTranscribes(t *testing.T) {
	requireShell(t)
	cfg := config.STTConfig{
		Mode:           "exec",
		CaptureCommand: "cp " + writeFixture(t) + " {output}",
		Command:        `sh -c 'printf "{\"text\":\" olá mundo \",\"confidence\":0.87}"'`,
		Language:       "pt",
	}
	l, err := NewExecListener(cfg, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	tr, err := l.Listen(context.Background(), ListenOptions{Timeout: 5 * time.Second, PhraseLimit: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "olá mundo", tr.Text)
	assert.InDelta(t, 0.87, tr.Confidence, 1e-9)

	entries, err := os.ReadDir(l.(*execListener).dir.Path())
	require.NoError(t, err)
	assert.Empty(t, entries, "captured audio must be removed")
}

func TestExecListenerNoSpeech(t *testing.T) {
	requireShell(t)
	silent := config.STTConfig{CaptureCommand: "true {output}", Command: "true"}
	l, err := NewExecListener(silent, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	_, err = l.Listen(context.Background(), ListenOptions{})
	require.ErrorIs(t, err, ErrNoSpeech)

	empty := config.STTConfig{
		CaptureCommand: "cp " + writeFixture(t) + " {output}",
		Command:        `sh -c 'printf "{\"text\":\"   \"}"'`,
	}
	l, err = NewExecListener(empty, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	_, err = l.Listen(context.Background(), ListenOptions{})
	require.ErrorIs(t, err, ErrNoSpeech)

	slow := config.STTConfig{CaptureCommand: "sleep 5", Command: "true"}
	l, err = NewExecListener(slow, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	_, err = l.Listen(context.Background(), ListenOptions{Timeout: 100 * time.Millisecond})
	require.ErrorIs(t, err, ErrNoSpeech)
}

func TestNewListener(t *testing.T) {
	cfg := config.Default().STT
	_, err := NewListener(cfg, nil, newLogger())
	require.Error(t, err)

	l, err := NewListener(cfg, console.NewScript(), newLogger())
	require.NoError(t, err)
	assert.IsType(t, &consoleListener{}, l)

	cfg.Mode = "mock"
	l, err = NewListener(cfg, nil, newLogger())
	require.NoError(t, err)
	assert.IsType(t, &MockListener{}, l)

	cfg.Mode = "whisper"
	_, err = NewListener(cfg, nil, newLogger())
	require.Error(t, err)

	opts := DefaultOptions(config.Default().STT)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 10*time.Second, opts.PhraseLimit)
}
