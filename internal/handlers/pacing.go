package handlers

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer delays replies so they do not arrive instantly
type Pacer interface {
	Delay() time.Duration
	Sleep(ctx context.Context, d time.Duration) error
}

// RandomPacer picks a whole-millisecond delay uniformly in [Min, Max]
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

func NewRandomPacer(min, max time.Duration) *RandomPacer {
	if max < min {
		min, max = max, min
	}
	return &RandomPacer{Min: min, Max: max}
}

func (p *RandomPacer) Delay() time.Duration {
	minMs := p.Min.Milliseconds()
	maxMs := p.Max.Milliseconds()
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.Int64N(maxMs-minMs+1)) * time.Millisecond
}

// Sleep waits for d or until ctx is done
func (p *RandomPacer) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
