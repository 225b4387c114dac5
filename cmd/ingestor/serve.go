package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/monitoringapi"
	"github.com/ledgerflow/ingestor/internal/pipeline"
	"github.com/ledgerflow/ingestor/internal/scheduler"
)

var serveInterval string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run poll-once on a fixed interval and serve the monitoring API until terminated",
	Long: "serve starts the cron-driven poll scheduler and the Fiber " +
		"monitoring API side by side, running until it receives SIGINT or " +
		"SIGTERM, at which point it stops the scheduler and drains the " +
		"monitoring API before exiting.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveInterval, "interval", "", "poll interval, e.g. 5m (defaults to POLL_INTERVAL)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer d.Close()

	rawInterval := serveInterval
	if rawInterval == "" {
		rawInterval = d.cfg.Server.PollInterval
	}
	interval, err := parsePollInterval(rawInterval)
	if err != nil {
		return err
	}

	runFn := scheduler.RunFunc(func(ctx context.Context) ([]pipeline.Outcome, model.MetricsSnapshot, error) {
		return d.pipeline.RunOnce(ctx)
	})

	sched, err := scheduler.New(runFn, interval, "logs/metrics.jsonl")
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched.Start()

	handler := monitoringapi.New(d.claims, d.collector, d.deadLetter, d.reviewQ)
	app := monitoringapi.NewApp(handler)

	serveErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", d.cfg.Monitoring.Port)
		log.Info().Str("addr", addr).Dur("interval", interval).Msg("serve started")
		serveErr <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		sched.Stop()
		return fmt.Errorf("monitoring API: %w", err)
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown monitoring API: %w", err)
	}

	if err := sched.LastError(); err != nil {
		log.Warn().Err(err).Msg("last scheduled poll cycle returned an error")
	}

	return nil
}
