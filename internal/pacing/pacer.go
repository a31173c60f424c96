// Package pacing inserts randomized, human-like pauses before navigations
// and fetches.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Pacer sleeps for a uniformly sampled duration
type Pacer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration)
}

// New returns a Pacer. A nil src seeds from the clock.
func New(src rand.Source) *Pacer {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>13|1)
	}
	return &Pacer{rng: rand.New(src), sleep: sleepCtx}
}

// Sample draws a duration uniformly from [min, max]. Bounds are swapped if
// reversed and negative values clamp to zero.
func (p *Pacer) Sample(min, max time.Duration) time.Duration {
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0
	}
	if max < min {
		min, max = max, min
	}
	if max == min {
		return min
	}

	p.mu.Lock()
	n := p.rng.Int64N(int64(max-min) + 1)
	p.mu.Unlock()
	return min + time.Duration(n)
}

// Delay blocks for a sampled duration in [min, max]. It returns early when
// ctx is done; it never fails.
func (p *Pacer) Delay(ctx context.Context, min, max time.Duration) {
	d := p.Sample(min, max)
	if d <= 0 {
		return
	}
	log.Debug().Dur("delay", d).Msg("Pacing")
	p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
