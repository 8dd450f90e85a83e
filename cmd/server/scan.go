package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/job"
	"sniper-scanner/internal/ranking"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var (
		once    bool
		top     int
		symbols []string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run scan cycles without the HTTP API",
		Long: `Run scan cycles in the foreground.

  sniper-scanner scan --once                     # one full universe cycle, JSON to stdout
  sniper-scanner scan --once --symbols BTCUSDT   # score selected symbols, no alert
  sniper-scanner scan                            # loop on SCAN_INTERVAL_SECS until interrupted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), once, top, symbols)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	cmd.Flags().IntVar(&top, "top", ranking.DefaultTopCount, "number of ranked symbols to print")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "score only these symbols (implies --once, never alerts)")
	return cmd
}

func runScan(parent context.Context, out io.Writer, once bool, top int, symbols []string) error {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if len(symbols) > 0 {
		return printReport(out, a.sniper.AnalyzeOnDemand(ctx, symbols), top)
	}

	if err := a.prepareStorage(ctx); err != nil {
		return err
	}

	if once {
		report, err := a.sniper.RunCycle(ctx)
		if err != nil {
			return err
		}
		return printReport(out, *report, top)
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	wait := waitForSignalFunc
	go func() {
		wait(ctx, quit)
		cancel()
	}()
	job.NewScanJob(a.tracer, a.sniper, cfg.ScanInterval).Start(ctx)
	return nil
}

func printReport(out io.Writer, report domain.CycleReport, top int) error {
	report.Ranked = ranking.Top(report.Ranked, top)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
