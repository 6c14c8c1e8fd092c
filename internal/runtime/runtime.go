// Package runtime assembles the service: telemetry, engines, journal, bus
// and the HTTP boundary, with ordered startup and shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkback-labs/talkback/internal/audio"
	"github.com/talkback-labs/talkback/internal/bus"
	"github.com/talkback-labs/talkback/internal/config"
	"github.com/talkback-labs/talkback/internal/grammar"
	"github.com/talkback-labs/talkback/internal/httpapi"
	"github.com/talkback-labs/talkback/internal/journal"
	"github.com/talkback-labs/talkback/internal/natsserver"
	"github.com/talkback-labs/talkback/internal/notify"
	"github.com/talkback-labs/talkback/internal/pipeline"
	"github.com/talkback-labs/talkback/internal/stt"
	"github.com/talkback-labs/talkback/internal/tts"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	grammarSrv    *grammar.Server
	journal       *journal.Store
	bus           *bus.Client
	embeddedNATS  *natsserver.EmbeddedServer
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	engines, err := r.buildEngines(ctx)
	if err != nil {
		return err
	}

	store, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	r.journal = store

	observers := []pipeline.Observer{store}
	if r.cfg.Notify.Enabled {
		if err := r.startBus(); err != nil {
			return err
		}
		observers = append(observers, notify.NewPublisher(r.bus, r.cfg.Notify.Subject, r.logger))
	}

	orch := pipeline.New(engines, r.cfg.TTS.Voices, r.cfg.DefaultLang, r.logger, observers...)

	api := httpapi.NewServer(r.cfg.HTTP, orch, r.logger, r.readiness)
	if r.cfg.Journal.Enabled {
		api.SetRunLister(store)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.grammarSrv != nil {
		r.grammarSrv.Stop()
	}
	if err := r.journal.Close(); err != nil {
		r.logger.Error("journal close error", slog.String("error", err.Error()))
	}
	r.bus.Close()
	r.embeddedNATS.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildEngines constructs the four pipeline engines per configured mode. The
// grammar server, if configured, is spawned here so the pipeline sees a live
// endpoint on its first run.
func (r *Runtime) buildEngines(ctx context.Context) (pipeline.Engines, error) {
	var engines pipeline.Engines

	normalizer, err := audio.NewExecNormalizer(r.cfg.Normalize)
	if err != nil {
		return engines, fmt.Errorf("failed to build normalizer: %w", err)
	}
	engines.Normalizer = normalizer

	switch r.cfg.STT.Mode {
	case "exec":
		recognizer, err := stt.NewExecRecognizer(r.cfg.STT)
		if err != nil {
			return engines, fmt.Errorf("failed to build recognizer: %w", err)
		}
		engines.Recognizer = recognizer
	default:
		engines.Recognizer = stt.NewMockRecognizer(r.cfg.DefaultLang)
	}

	if r.cfg.Grammar.Enabled {
		switch r.cfg.Grammar.Mode {
		case "server":
			srv := grammar.NewServer(r.cfg.Grammar, r.logger)
			if err := srv.Start(ctx); err != nil {
				return engines, fmt.Errorf("failed to start grammar server: %w", err)
			}
			r.grammarSrv = srv
			engines.Checker = srv
		default:
			engines.Checker = grammar.NewMockChecker()
		}
	}

	switch r.cfg.TTS.Mode {
	case "exec":
		synth, err := tts.NewExecSynth(r.cfg.TTS)
		if err != nil {
			return engines, fmt.Errorf("failed to build synthesizer: %w", err)
		}
		engines.Synth = synth
	default:
		engines.Synth = tts.NewMockSynth(r.cfg.TTS.SampleRate, r.cfg.TTS.Channels)
	}

	return engines, nil
}

// readiness reports whether the service can take uploads. The grammar engine
// is deliberately excluded: the pipeline degrades to uncorrected text when it
// is down, so its health never gates readiness.
func (r *Runtime) readiness() bool {
	if !r.ready.Load() {
		return false
	}
	if r.cfg.Notify.Enabled && !r.bus.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) startBus() error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	r.embeddedNATS = embedded

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}
	client, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		r.embeddedNATS.Shutdown()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.bus = client
	return nil
}
