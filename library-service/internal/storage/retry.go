package storage

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/azaliaz/library/library-service/internal/domain/consts"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

const jitterFactor = 0.3

// retryOnConflict reruns fn with exponential backoff while it fails with
// ErrVersionConflict. Any other error is returned at once.
func retryOnConflict(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < consts.MaxBorrowRetries; attempt++ {
		if attempt > 0 {
			delay := consts.RetryBaseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, storerrors.ErrVersionConflict) {
			return lastErr
		}
	}
	return lastErr
}
