package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// BreakerEmbedder stops calling a failing embedding backend for a cool-down
// period once consecutive failures reach the threshold. While open, calls
// fail immediately and queries fall back without waiting on timeouts.
type BreakerEmbedder struct {
	inner   port.Embedder
	breaker *gobreaker.CircuitBreaker[[][]float32]
}

func NewBreakerEmbedder(inner port.Embedder, failures uint32, timeout time.Duration) *BreakerEmbedder {
	if failures == 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "embedding:" + inner.ModelName(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[][]float32](settings),
	}
}

func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.breaker.Execute(func() ([][]float32, error) {
		vec, err := b.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.breaker.Execute(func() ([][]float32, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
}

func (b *BreakerEmbedder) Dimension() int    { return b.inner.Dimension() }
func (b *BreakerEmbedder) ModelName() string { return b.inner.ModelName() }

// IsOpen reports whether err came from an open breaker rather than the backend.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
