package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/audit"
	"github.com/DoyleJ11/darkmoon-dice/internal/config"
	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/DoyleJ11/darkmoon-dice/internal/httpapi"
	"github.com/DoyleJ11/darkmoon-dice/internal/hub"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/DoyleJ11/darkmoon-dice/internal/logging"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
	"github.com/DoyleJ11/darkmoon-dice/internal/tracing"
	"github.com/DoyleJ11/darkmoon-dice/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	path, err := config.Path(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	seed, err := dice.NewSeed()
	if err != nil {
		return err
	}

	opts := lobby.Options{
		Rules:   engine.Rules{FeedLimit: cfg.Room.FeedLimit, RollRetention: cfg.Room.RollRetention},
		Roller:  dice.NewRoller(seed),
		Logger:  logger,
		Metrics: m,
	}

	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	if cfg.Audit.DSN != "" {
		db, err := audit.Open(cfg.Audit.DSN)
		if err != nil {
			stopAudit()
			return err
		}
		w := audit.NewWriter(db, cfg.Audit.Buffer, logger)
		opts.Audit = w
		go func() {
			w.Run(auditCtx)
			close(auditDone)
		}()
		logger.Infow("audit trail enabled", "buffer", cfg.Audit.Buffer)
	} else {
		close(auditDone)
	}

	h := hub.NewHub(context.Background(), opts)

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub: h,
		WS: ws.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			ClientBuffer:   cfg.Room.ClientBuffer,
			RatePerSecond:  cfg.RateLimit.PerSecond,
			RateBurst:      cfg.RateLimit.Burst,
			Metrics:        m,
		},
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("server has started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stopAudit()
		return err
	case <-ctx.Done():
		logger.Infow("signal caught, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown", "error", err)
	}
	// Websockets are hijacked, so closing the rooms is what ends them.
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("hub shutdown", "error", err)
	}
	stopAudit()
	select {
	case <-auditDone:
	case <-shutdownCtx.Done():
		logger.Warnw("audit drain timed out")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warnw("tracer shutdown", "error", err)
	}

	logger.Infow("server stopped")
	return nil
}
