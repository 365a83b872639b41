// Package runtime wires the voice components into a long running service.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-voice/internal/bus"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/natsserver"
	"github.com/loqalabs/loqa-voice/internal/voice"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	promServer *http.Server
	telemetry  *Telemetry
	embedded   *natsserver.EmbeddedServer
	bus        *bus.Client
	voice      *Voice
	service    *voice.Service
	started    atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs until ctx is cancelled, then shuts every component down in
// reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := SetupTelemetry(ctx, r.cfg, r.logger, true)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	if err := r.startComponents(ctx); err != nil {
		r.stop()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if tel.Metrics != nil {
		mux.Handle("/metrics", tel.Metrics)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = r.serve(addr, mux)
	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && bind != addr && tel.Metrics != nil {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", tel.Metrics)
		r.promServer = r.serve(bind, promMux)
	}

	r.started.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.started.Store(false)
	r.stop()
	return nil
}

func (r *Runtime) startComponents(ctx context.Context) error {
	v, err := NewVoice(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	r.voice = v

	if !r.cfg.Bus.Enabled {
		r.logger.Warn("bus disabled; speak service not started")
		return nil
	}

	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return err
	}
	r.embedded = embedded
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = client

	r.service = voice.NewService(ctx, client, v.Orchestrator, r.cfg.TTS.Volume, r.logger)
	if err := r.service.Start(); err != nil {
		return fmt.Errorf("start speak service: %w", err)
	}
	return nil
}

func (r *Runtime) serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	return srv
}

func (r *Runtime) stop() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	for _, srv := range []*http.Server{r.httpServer, r.promServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.service != nil {
		r.service.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.embedded.Shutdown()
	if r.voice != nil {
		if err := r.voice.Close(); err != nil {
			r.logger.Error("voice shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

// Ready reports whether the runtime can accept speak requests.
func (r *Runtime) Ready() bool {
	if !r.started.Load() {
		return false
	}
	if r.bus == nil {
		return true
	}
	return r.bus.Healthy() && r.service != nil && r.service.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
