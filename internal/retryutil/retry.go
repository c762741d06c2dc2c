package retryutil

import (
	"context"
	"log/slog"
	"time"
)

const defaultRetryDelay = 2 * time.Second

// Until calls fn until it succeeds, sleeping delay between attempts. It
// returns ctx.Err() if the context ends first.
func Until(ctx context.Context, logger *slog.Logger, name string, delay time.Duration, fn func(ctx context.Context) error) error {
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if logger != nil {
			logger.Warn(name+"_retry", "delay", delay.String(), "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
