package service

import (
	"Parley/internal/pkg/database"
	"context"
	log "log/slog"
	"time"
)

// retryRetryable 遇到死锁或锁等待超时按指数退避整体重试 op，次数耗尽返回 exhausted；
// 其它错误原样返回
func retryRetryable(ctx context.Context, attempts int, backoff time.Duration, exhausted error, op func() error, attrs ...any) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !database.IsRetryable(err) {
			return err
		}
		if attempt >= attempts {
			log.WarnContext(ctx, "transaction retries exhausted", append(attrs, "attempts", attempt, "err", err)...)
			return exhausted
		}
		log.InfoContext(ctx, "transaction conflict, retrying", append(attrs, "attempt", attempt, "err", err)...)
		if err = sleepCtx(ctx, backoff<<(attempt-1)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
