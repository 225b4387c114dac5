package monitoringapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/metrics"
	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/reviewqueue"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.pingErr
}

func newTestHandler(t *testing.T, pingErr error) (*Handler, *deadletter.Log, *reviewqueue.Queue) {
	t.Helper()
	dir := t.TempDir()

	dl, err := deadletter.New(filepath.Join(dir, "dead_letter.jsonl"))
	require.NoError(t, err)

	rq, err := reviewqueue.New(filepath.Join(dir, "review_queue"))
	require.NoError(t, err)

	h := New(&mockPinger{pingErr: pingErr}, metrics.NewCollector(nil), dl, rq)
	return h, dl, rq
}

func TestHandler_Health_AlwaysOK(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	app := fiber.New()
	h.Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestHandler_HealthReady_ReportsUnhealthyOnPingFailure(t *testing.T) {
	h, _, _ := newTestHandler(t, errors.New("db unreachable"))
	app := fiber.New()
	h.Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"unhealthy"`)
}

func TestHandler_HealthReady_ReportsOKWhenReachable(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	app := fiber.New()
	h.Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHandler_Backlog_AggregatesReviewAndDeadLetterCounts(t *testing.T) {
	h, dl, rq := newTestHandler(t, nil)
	app := fiber.New()
	h.Register(app)

	_, err := rq.Enqueue("doc-1", []string{"schema_validation_failed"}, "", nil)
	require.NoError(t, err)
	require.NoError(t, dl.WriteFailure(model.DeadLetterEntry{DocumentID: "doc-2", Status: "FAILED", ErrorCode: "pipeline_error"}))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/backlog", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"dead_letter_total":1`)
	assert.Contains(t, string(body), `"review_queue_total":1`)
	assert.Contains(t, string(body), `"attention_total":2`)
}

func TestHandler_Failures_RespectsLimitQueryParam(t *testing.T) {
	h, dl, _ := newTestHandler(t, nil)
	app := fiber.New()
	h.Register(app)

	for i := 0; i < 3; i++ {
		require.NoError(t, dl.WriteFailure(model.DeadLetterEntry{DocumentID: "doc", Status: "FAILED"}))
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/failures?limit=1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Failures []model.DeadLetterEntry `json:"failures"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Len(t, decoded.Failures, 1)
}

func TestHandler_Stats_ReturnsMetricsSnapshot(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	app := fiber.New()
	h.Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/stats", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHandler_Metrics_ServesPrometheusExposition(t *testing.T) {
	collector := metrics.NewCollector(metrics.NewPrometheusCollector())
	h := New(&mockPinger{}, collector, mustDeadLetterLog(t), mustReviewQueue(t))
	app := fiber.New()
	h.Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ingestor_")
}

func mustDeadLetterLog(t *testing.T) *deadletter.Log {
	t.Helper()
	dl, err := deadletter.New(filepath.Join(t.TempDir(), "dead_letter.jsonl"))
	require.NoError(t, err)
	return dl
}

func mustReviewQueue(t *testing.T) *reviewqueue.Queue {
	t.Helper()
	rq, err := reviewqueue.New(filepath.Join(t.TempDir(), "review_queue"))
	require.NoError(t, err)
	return rq
}
