package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRetryBusy(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := retryBusy(context.Background(), zap.NewNop(), func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		boom := errors.New("constraint failed")
		calls := 0
		err := retryBusy(context.Background(), zap.NewNop(), func() error {
			calls++
			return fmt.Errorf("upsert: %w", boom)
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after bounded retries", func(t *testing.T) {
		calls := 0
		err := retryBusy(context.Background(), zap.NewNop(), func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, busyRetries+1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryBusy(ctx, zap.NewNop(), func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked")))
	assert.True(t, isBusy(errors.New("database table is locked: chunks")))
	assert.True(t, isBusy(errors.New("sqlite3: SQLITE_BUSY")))
	assert.False(t, isBusy(errors.New("no such table: chunks")))
}
