package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"sniper-scanner/internal/bot"
	"sniper-scanner/internal/cache"
	"sniper-scanner/internal/config"
	"sniper-scanner/internal/db"
	"sniper-scanner/internal/provider"
	"sniper-scanner/internal/scanner"
	"sniper-scanner/pkg/logging"
	"sniper-scanner/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	setupLoggingFunc  = logging.Setup
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	newMarketDataFunc = func(tracer trace.Tracer, baseURL string) scanner.MarketDataSource {
		return provider.NewBybitProvider(tracer, baseURL)
	}
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(ctx context.Context, quit <-chan os.Signal) {
		select {
		case <-quit:
		case <-ctx.Done():
		}
	}
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sniper-scanner",
		Short:         "Bybit perpetuals sniper scanner",
		Long:          "Scans Bybit USDT perpetuals, scores long and short setups, ranks them and alerts on the best target.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newScanCmd(), newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env when present, then the environment, and sets up logging.
func loadConfig() *config.Config {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	setupLoggingFunc(cfg.LogLevel, cfg.LogFormat)
	return cfg
}
