package utils

import (
	"context"
	"time"
)

// StartSweeper runs fn every interval until ctx is cancelled. Failures are logged and
// the next tick retries.
func StartSweeper(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) (int64, error)) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := fn(ctx)
				if err != nil {
					Sugar.Errorw("sweep failed", "sweeper", name, "error", err)
					continue
				}
				if n > 0 {
					Sugar.Infow("sweep done", "sweeper", name, "affected", n)
				}
			}
		}
	}()
}
