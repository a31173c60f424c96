package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/pkg/models"
)

// RunBatch processes items with at most workers tasks in flight and returns
// one Outcome per item, in input order.
//
// Cancelling ctx stops submission: tasks already running finish on a
// detached context, and items never submitted come back as CANCELLED
// failures.
func (e *Engine) RunBatch(ctx context.Context, items []models.ItemReference, workers int) []models.Outcome {
	if len(items) == 0 {
		return []models.Outcome{}
	}
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	logger := log.With().Str("run", uuid.NewString()).Logger()
	logger.Info().Int("items", len(items)).Int("workers", workers).Msg("Batch started")
	start := time.Now()

	outcomes := make([]models.Outcome, len(items))
	var mu sync.Mutex
	report := func(i int, o models.Outcome) {
		outcomes[i] = o
		if e.opts.OnOutcome != nil {
			mu.Lock()
			e.opts.OnOutcome(o)
			mu.Unlock()
		}
	}

	taskCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	submitted := 0

submit:
	for i, item := range items {
		if i > 0 && e.opts.SubmitStagger > 0 {
			timer := time.NewTimer(e.opts.SubmitStagger)
			select {
			case <-ctx.Done():
				timer.Stop()
				break submit
			case <-timer.C:
			}
		}

		select {
		case <-ctx.Done():
			break submit
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break submit
		}

		submitted = i + 1
		wg.Add(1)
		go func(i int, item models.ItemReference) {
			defer wg.Done()
			defer func() { <-sem }()
			report(i, e.ProcessItem(taskCtx, item))
		}(i, item)
	}

	if submitted < len(items) {
		logger.Warn().Int("pending", len(items)-submitted).Msg("Batch interrupted, remaining items not submitted")
		for i := submitted; i < len(items); i++ {
			err := NewEngineError(ErrCodeCancelled, "not submitted before interrupt", ctx.Err())
			report(i, models.Failure(items[i], err, e.opts.Now()))
		}
	}

	wg.Wait()

	ok := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			ok++
		}
	}
	logger.Info().
		Int("succeeded", ok).
		Int("failed", len(items)-ok).
		Dur("elapsed", time.Since(start)).
		Msg("Batch finished")
	return outcomes
}
