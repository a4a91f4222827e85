// Package limit provides per-service admission control for outbound model calls.
package limit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Gate bounds the number of concurrently outstanding calls to one external
// service and optionally throttles their start rate. Callers over capacity
// queue; they are never rejected unless the context ends first.
type Gate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewGate creates a gate admitting at most maxConcurrent simultaneous calls.
// ratePerSecond > 0 adds a proactive token-bucket throttle on call starts.
func NewGate(maxConcurrent int, ratePerSecond float64) (*Gate, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("maxConcurrent must be positive")
	}
	g := &Gate{sem: make(chan struct{}, maxConcurrent)}
	if ratePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return g, nil
}

// Acquire blocks until a slot is available, then returns a release func.
// The release func must be called exactly once when the call completes.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			<-g.sem
			return nil, err
		}
	}
	return func() { <-g.sem }, nil
}

// InFlight returns the number of currently admitted calls.
func (g *Gate) InFlight() int {
	return len(g.sem)
}
