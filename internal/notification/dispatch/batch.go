package dispatch

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"
)

type sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// batchPlan describes how a bulk request is cut into sequential batches.
type batchPlan struct {
	size  int
	delay time.Duration
	sleep sleeper
	// onBatch runs before each batch starts with the batch's item count.
	onBatch func(n int)
}

// runBatches sends items in consecutive batches. Items within a batch run
// concurrently and the batch is joined before the delay and the next batch.
// results[i] always belongs to items[i]. Once ctx is done no new batch starts
// and every remaining item gets skip(item, ctx.Err()).
func runBatches[T, R any](ctx context.Context, items []T, plan batchPlan, send func(context.Context, T) R, skip func(T, error) R) []R {
	results := make([]R, len(items))
	if plan.size <= 0 {
		plan.size = 1
	}
	if plan.sleep == nil {
		plan.sleep = sleepContext
	}

	for start := 0; start < len(items); start += plan.size {
		end := start + plan.size
		if end > len(items) {
			end = len(items)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i] = skip(items[i], err)
			}
			return results
		}

		if plan.onBatch != nil {
			plan.onBatch(end - start)
		}

		var wg conc.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Go(func() {
				results[i] = send(ctx, items[i])
			})
		}
		wg.Wait()

		if end < len(items) {
			if err := plan.sleep(ctx, plan.delay); err != nil {
				for i := end; i < len(items); i++ {
					results[i] = skip(items[i], err)
				}
				return results
			}
		}
	}
	return results
}
