package extractor

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// resilientClient wraps a VisionClient with a per-provider circuit breaker
// and token-bucket rate limiter, so one provider tripping or being
// throttled doesn't block the others in a MultiProviderClient chain.
// Grounded on jordigilh-kubernaut's go.mod dependencies on sony/gobreaker
// and golang.org/x/time/rate; the pack has no non-test call site for
// either, so the breaker settings and limiter wiring follow each
// library's documented defaults.
type resilientClient struct {
	inner   VisionClient
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newResilientClient(inner VisionClient, requestsPerSecond float64, burst int) *resilientClient {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &resilientClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (r *resilientClient) Name() string { return r.inner.Name() }

func (r *resilientClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", newError(CodeProviderRequestFailed, r.Name()+": rate limiter wait failed", err)
	}

	// Each provider call is bounded by a 60s request timeout.
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result, err := r.breaker.Execute(func() (any, error) {
		return r.inner.ExtractJSON(ctx, filePath, mimeType, modelName, prompt)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", newError(CodeProviderRequestFailed, r.Name()+": circuit open", err)
		}
		return "", err
	}
	return result.(string), nil
}
