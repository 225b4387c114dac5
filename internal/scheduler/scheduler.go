// Package scheduler drives repeated Pipeline poll cycles on a fixed
// interval for the `serve` CLI subcommand. Interval polling is additive to
// the one-shot `poll-once` command; nothing here attempts real-time
// streaming.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/pipeline"
)

// RunFunc executes one poll cycle and returns its metrics snapshot.
type RunFunc func(ctx context.Context) ([]pipeline.Outcome, model.MetricsSnapshot, error)

// Scheduler wraps a robfig/cron runner that invokes run on a fixed
// interval until Stop is called.
type Scheduler struct {
	cron           *cron.Cron
	run            RunFunc
	metricsLogPath string
	mu             sync.Mutex
	lastErr        error
}

// New returns a Scheduler that calls run every interval, logging one
// MetricsSnapshot (to zerolog and to metricsLogPath as a JSONL line) after
// each cycle that returns no error. interval is formatted into an
// "@every <interval>" spec, the form robfig/cron expects for a fixed
// period rather than a calendar schedule.
func New(run RunFunc, interval time.Duration, metricsLogPath string) (*Scheduler, error) {
	s := &Scheduler{
		cron:           cron.New(),
		run:            run,
		metricsLogPath: metricsLogPath,
	}

	spec := fmt.Sprintf("@every %s", interval.String())
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule poll interval: %w", err)
	}
	return s, nil
}

// Start begins the cron scheduler in the background. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// LastError returns the error from the most recent poll cycle, or nil if
// the last cycle (or every cycle so far) succeeded.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	outcomes, snapshot, err := s.run(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("poll cycle failed")
		return
	}

	log.Info().
		Int("candidates", len(outcomes)).
		Int64("throughput_total", snapshot.ThroughputTotal).
		Int64("success_total", snapshot.SuccessTotal).
		Int64("review_total", snapshot.ReviewTotal).
		Int64("failure_total", snapshot.FailureTotal).
		Int64("duplicate_skips_total", snapshot.DuplicateSkipsTotal).
		Int64("latency_p95_ms", snapshot.LatencyP95Ms).
		Msg("poll cycle completed")

	if err := s.appendMetricsLine(snapshot); err != nil {
		log.Error().Err(err).Msg("write metrics snapshot failed")
	}
}

func (s *Scheduler) appendMetricsLine(snapshot model.MetricsSnapshot) error {
	if s.metricsLogPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.metricsLogPath), 0o755); err != nil {
		return fmt.Errorf("create metrics log directory: %w", err)
	}

	line, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}

	f, err := os.OpenFile(s.metricsLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics log: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}
