package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"syscall"
	"time"

	"sniper-scanner/internal/handler"
	"sniper-scanner/internal/job"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan loop, HTTP API and Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.prepareStorage(ctx); err != nil {
		return err
	}

	notifier, err := startTelegramBotFunc(ctx, cfg.TelegramBotToken, cfg.TelegramChatID, a.sniper)
	if err != nil {
		log.Error().Err(err).Msg("telegram bot unavailable")
	} else if notifier != nil {
		a.sniper.AddConsumer(notifier)
	}

	go job.NewScanJob(a.tracer, a.sniper, cfg.ScanInterval).Start(ctx)
	go job.NewRetentionJob(a.tracer, a.sniper, a.snapshots, cfg.Retention(), 0).Start(ctx)

	var store handler.ReportStore
	if a.publisher != nil {
		store = a.publisher
	}
	h := handler.New(a.tracer, a.sniper, store, a.metrics.Handler(), cfg.APIKey)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("sniper-scanner"))
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	startHTTP, wait := startHTTPServerFunc, waitForSignalFunc
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := startHTTP(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)

	waited := make(chan struct{})
	go func() {
		wait(ctx, quit)
		close(waited)
	}()

	select {
	case <-waited:
	case err := <-serveErr:
		cancel()
		return err
	}
	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server exiting")
	return nil
}
