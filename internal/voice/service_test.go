package voice

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/bus"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/delivery"
	"github.com/loqalabs/loqa-voice/internal/natsserver"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

type speakCall struct {
	text     string
	slow     bool
	language string
	volume   float64
}

type fakeSpeaker struct {
	mu        sync.Mutex
	delivered []string
	speaks    []speakCall
	result    delivery.Result
	ok        bool
}

func (f *fakeSpeaker) DeliverDetailed(_ context.Context, text string) delivery.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, text)
	return f.result
}

func (f *fakeSpeaker) SpeakWithOptions(_ context.Context, text string, slow bool, language string, volume float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaks = append(f.speaks, speakCall{text, slow, language, volume})
	return f.ok
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startService(t *testing.T, speaker Speaker) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.True(t, client.Healthy())

	svc := NewService(context.Background(), client, speaker, 0.9, newLogger())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	require.True(t, svc.Healthy())
	return client
}

func TestSpeakRequestDelivers(t *testing.T) {
	speaker := &fakeSpeaker{result: delivery.Result{Outcome: delivery.Degraded, Strategy: delivery.StrategySentences, Played: 2}}
	client := startService(t, speaker)

	results := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectSpeakResult, results)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var reply protocol.SpeakResult
	require.NoError(t, client.RequestJSON(ctx, protocol.SubjectSpeak, protocol.SpeakRequest{SessionID: "s1", Text: "Olá. Tudo bem?"}, &reply))

	assert.Equal(t, "s1", reply.SessionID)
	assert.Equal(t, "degraded", reply.Outcome)
	assert.Equal(t, delivery.StrategySentences, reply.Strategy)
	assert.Equal(t, 2, reply.Played)

	select {
	case msg := <-results:
		var published protocol.SpeakResult
		require.NoError(t, json.Unmarshal(msg.Data, &published))
		assert.Equal(t, reply.Outcome, published.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("speak result was not published")
	}

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Equal(t, []string{"Olá. Tudo bem?"}, speaker.delivered)
	assert.Empty(t, speaker.speaks)
}

func TestSpeakRequestWithOverrides(t *testing.T) {
	speaker := &fakeSpeaker{ok: true}
	client := startService(t, speaker)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reply protocol.SpeakResult
	require.NoError(t, client.RequestJSON(ctx, protocol.SubjectSpeak, protocol.SpeakRequest{SessionID: "s2", Text: "devagar", Slow: true}, &reply))
	assert.Equal(t, "succeeded", reply.Outcome)

	volume := 0.3
	speaker.mu.Lock()
	speaker.ok = false
	speaker.mu.Unlock()
	require.NoError(t, client.RequestJSON(ctx, protocol.SubjectSpeak, protocol.SpeakRequest{Text: "hello", Language: "en", Volume: &volume}, &reply))
	assert.Equal(t, "failed", reply.Outcome)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Equal(t, []speakCall{
		{text: "devagar", slow: true, volume: 0.9},
		{text: "hello", language: "en", volume: 0.3},
	}, speaker.speaks)
	assert.Empty(t, speaker.delivered)
}

func TestSpeakRequestRejectsBadInput(t *testing.T) {
	speaker := &fakeSpeaker{}
	client := startService(t, speaker)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reply protocol.SpeakResult
	require.NoError(t, client.RequestJSON(ctx, protocol.SubjectSpeak, protocol.SpeakRequest{Text: "   "}, &reply))
	assert.Equal(t, "failed", reply.Outcome)
	assert.Equal(t, "empty text", reply.Error)

	msg, err := client.Conn().RequestWithContext(ctx, protocol.SubjectSpeak, []byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Equal(t, "invalid request", reply.Error)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Empty(t, speaker.delivered)
}
