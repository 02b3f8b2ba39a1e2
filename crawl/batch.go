package crawl

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runBatches fetches items in batches of cfg.Concurrency and commits each
// successful result, one commit per item, in item order, once the whole batch
// has returned. Fetches are never cancelled mid-flight; the interruption flag
// is checked before every batch and before every dispatch.
//
// A fetch error stops the stage after the rest of its batch is committed and
// is returned. A commit error is returned immediately.
func runBatches[T, R any](
	ctx context.Context,
	c *Crawler,
	items []T,
	th *throttle,
	fetch func(ctx context.Context, item T) (R, error),
	commit func(ctx context.Context, item T, result R) error,
) error {
	size := c.cfg.Concurrency
	// In-flight work outlives a cancelled parent; the transport timeout bounds it.
	workCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(items); start += size {
		if err := th.Wait(ctx); err != nil {
			c.Interrupt()
		}
		if c.Interrupted() {
			return nil
		}

		batch := items[start:min(start+size, len(items))]
		results := make([]R, len(batch))
		errs := make([]error, len(batch))
		dispatched := len(batch)

		var eg errgroup.Group
		eg.SetLimit(size)
		for i, item := range batch {
			if c.Interrupted() {
				dispatched = i
				break
			}
			eg.Go(func() error {
				results[i], errs[i] = fetch(workCtx, item)
				return nil
			})
		}
		eg.Wait()

		var fetchErr error
		for i := 0; i < dispatched; i++ {
			if errs[i] != nil {
				if fetchErr == nil {
					fetchErr = errs[i]
				}
				continue
			}
			if err := commit(workCtx, batch[i], results[i]); err != nil {
				return err
			}
		}
		if fetchErr != nil {
			return fetchErr
		}
	}
	return nil
}
