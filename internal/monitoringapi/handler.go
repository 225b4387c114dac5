// Package monitoringapi exposes operational visibility into the ingestion
// pipeline over HTTP: liveness/readiness, aggregated counters, a
// dead-letter tail, and Prometheus text exposition. Grounded on the
// teacher's health_handler.go + cmd/api/main.go Fiber wiring, generalized
// from a single database-ping check to the pipeline's own set of signals.
package monitoringapi

import (
	"context"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/metrics"
)

// NewApp builds a Fiber app configured like the teacher's cmd/api/main.go
// (timeouts, recover/requestid/logger middleware) with h's routes mounted.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "ledgerflow-ingestor",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())

	h.Register(app)
	return app
}

// Pinger reports whether the claim store is reachable, mirroring the
// teacher's Pinger interface for /health/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReviewLister counts pending review-queue entries.
type ReviewLister interface {
	Count() (int, error)
}

// Handler serves the monitoring endpoints. Its constructor dependencies
// are all read-only views over pipeline state; it never mutates anything.
type Handler struct {
	claims     Pinger
	metrics    *metrics.Collector
	deadLetter *deadletter.Log
	reviewDir  ReviewLister
}

// New returns a Handler wired to its dependencies.
func New(claims Pinger, collector *metrics.Collector, deadLetterLog *deadletter.Log, reviewDir ReviewLister) *Handler {
	return &Handler{claims: claims, metrics: collector, deadLetter: deadLetterLog, reviewDir: reviewDir}
}

// Register mounts every monitoring route onto app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.health)
	app.Get("/health/ready", h.healthReady)
	app.Get("/stats", h.stats)
	app.Get("/failures", h.failures)
	app.Get("/backlog", h.backlog)
	app.Get("/metrics", h.metricsHandler)
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// healthReady pings the claim store, mirroring the teacher's database-ping
// readiness check.
func (h *Handler) healthReady(c *fiber.Ctx) error {
	if err := h.claims.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("readiness check failed: claim store unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "claim store connection failed",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) stats(c *fiber.Ctx) error {
	snapshot := h.metrics.Snapshot()

	deadLetterTotal, reviewTotal := h.backlogCounts()

	return c.JSON(fiber.Map{
		"throughput_total":       snapshot.ThroughputTotal,
		"success_total":          snapshot.SuccessTotal,
		"review_total":           snapshot.ReviewTotal,
		"failure_total":          snapshot.FailureTotal,
		"duplicate_skips_total":  snapshot.DuplicateSkipsTotal,
		"latency_p95_ms":         snapshot.LatencyP95Ms,
		"dead_letter_queue_size": deadLetterTotal,
		"review_queue_size":      reviewTotal,
	})
}

func (h *Handler) failures(c *fiber.Ctx) error {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.deadLetter.ListFailures("")
	if err != nil {
		log.Error().Err(err).Msg("read dead letter log failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read dead letter log"})
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return c.JSON(fiber.Map{"failures": entries})
}

func (h *Handler) backlog(c *fiber.Ctx) error {
	deadLetterTotal, reviewTotal := h.backlogCounts()
	return c.JSON(fiber.Map{
		"review_queue_total": reviewTotal,
		"dead_letter_total":  deadLetterTotal,
		"attention_total":    reviewTotal + deadLetterTotal,
	})
}

// metricsHandler adapts the Collector's stdlib promhttp.Handler to Fiber by
// running it against an httptest.ResponseRecorder and copying the result
// through, since client_golang's handler speaks net/http, not fiber.Ctx.
func (h *Handler) metricsHandler(c *fiber.Ctx) error {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	h.metrics.Handler().ServeHTTP(recorder, req)

	for key, values := range recorder.Header() {
		for _, value := range values {
			c.Set(key, value)
		}
	}
	return c.Status(recorder.Code).Send(recorder.Body.Bytes())
}

func (h *Handler) backlogCounts() (deadLetterTotal, reviewTotal int) {
	entries, err := h.deadLetter.ListFailures("")
	if err != nil {
		log.Error().Err(err).Msg("count dead letter entries failed")
	} else {
		deadLetterTotal = len(entries)
	}

	if h.reviewDir != nil {
		if count, err := h.reviewDir.Count(); err != nil {
			log.Error().Err(err).Msg("count review queue entries failed")
		} else {
			reviewTotal = count
		}
	}
	return deadLetterTotal, reviewTotal
}
