package indexer

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// busyRetries bounds the retries of a write that found the database locked
const busyRetries = 4

// retryBusy runs fn, retrying with exponential backoff while SQLite reports
// the database as busy or locked, for example when another process holds a
// write lock on the same file. Other errors are returned immediately.
func retryBusy(ctx context.Context, logger *zap.Logger, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return backoff.Permanent(err)
		}
		logger.Debug("database busy, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, busyRetries), ctx))
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED as surfaced by
// either driver.
func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
