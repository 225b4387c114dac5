package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/pipeline"
)

// TestMain verifies every cron-driven goroutine this package's tests start
// is gone by the time the package's tests finish, catching a Start without
// a matching Stop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_RunsOnIntervalAndWritesMetricsLine(t *testing.T) {
	var calls int32
	logPath := filepath.Join(t.TempDir(), "metrics.jsonl")

	run := func(ctx context.Context) ([]pipeline.Outcome, model.MetricsSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return nil, model.MetricsSnapshot{ThroughputTotal: 1, SuccessTotal: 1}, nil
	}

	s, err := New(run, 100*time.Millisecond, logPath)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	s.Stop()
	require.NoError(t, s.LastError())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var snapshot model.MetricsSnapshot
	firstLine := data
	if idx := indexOfNewline(data); idx != -1 {
		firstLine = data[:idx]
	}
	require.NoError(t, json.Unmarshal(firstLine, &snapshot))
	assert.Equal(t, int64(1), snapshot.ThroughputTotal)
}

func TestScheduler_RecordsLastError(t *testing.T) {
	run := func(ctx context.Context) ([]pipeline.Outcome, model.MetricsSnapshot, error) {
		return nil, model.MetricsSnapshot{}, assert.AnError
	}

	s, err := New(run, 50*time.Millisecond, "")
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.LastError() != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, s.LastError(), assert.AnError)
}

func indexOfNewline(data []byte) int {
	for i, b := range data {
		if b == '\n' {
			return i
		}
	}
	return -1
}
