// Package voice exposes the delivery orchestrator on the message bus.
package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-voice/internal/bus"
	"github.com/loqalabs/loqa-voice/internal/delivery"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

// Speaker is the part of delivery.Orchestrator the service drives.
type Speaker interface {
	DeliverDetailed(ctx context.Context, text string) delivery.Result
	SpeakWithOptions(ctx context.Context, text string, slow bool, language string, volume float64) bool
}

type Service struct {
	bus           *bus.Client
	speaker       Speaker
	defaultVolume float64
	timeout       time.Duration
	sub           *nats.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// NewService builds the speak service. defaultVolume is used for override
// requests that do not carry a volume.
func NewService(parent context.Context, busClient *bus.Client, speaker Speaker, defaultVolume float64, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:           busClient,
		speaker:       speaker,
		defaultVolume: defaultVolume,
		timeout:       2 * time.Minute,
		ctx:           ctx,
		cancel:        cancel,
		logger:        log.With(slog.String("component", "voice-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeak, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("speak service listening", slog.String("subject", protocol.SubjectSpeak))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil && s.sub.IsValid() }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		s.reply(msg, protocol.SpeakResult{Outcome: delivery.Failed.String(), Error: "invalid request", Timestamp: time.Now().UTC()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		result := s.speak(ctx, req)
		s.publish(result)
		s.reply(msg, result)
	}()
}

func (s *Service) speak(ctx context.Context, req protocol.SpeakRequest) protocol.SpeakResult {
	result := protocol.SpeakResult{SessionID: req.SessionID}
	switch {
	case strings.TrimSpace(req.Text) == "":
		result.Outcome = delivery.Failed.String()
		result.Error = "empty text"
	case req.HasOverrides():
		volume := s.defaultVolume
		if req.Volume != nil {
			volume = *req.Volume
		}
		if s.speaker.SpeakWithOptions(ctx, req.Text, req.Slow, req.Language, volume) {
			result.Outcome = delivery.Succeeded.String()
			result.Strategy = "options"
			result.Played = 1
		} else {
			result.Outcome = delivery.Failed.String()
		}
	default:
		res := s.speaker.DeliverDetailed(ctx, req.Text)
		result.Outcome = res.Outcome.String()
		result.Strategy = res.Strategy
		result.Played = res.Played
	}
	result.Timestamp = time.Now().UTC()
	s.logger.Info("speak request handled",
		slog.String("session_id", req.SessionID),
		slog.String("outcome", result.Outcome),
		slog.String("strategy", result.Strategy))
	return result
}

func (s *Service) publish(result protocol.SpeakResult) {
	if err := s.bus.PublishJSON(protocol.SubjectSpeakResult, result); err != nil {
		s.logger.Warn("failed to publish speak result", slogError(err))
	}
}

func (s *Service) reply(msg *nats.Msg, result protocol.SpeakResult) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal speak reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send speak reply", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
