package download

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"syscall"
	"time"

	"github.com/jgivc/paqmirror/internal/common"
)

// DefaultRetryDelay is the fixed pause between attempts on a contended
// target, worst-case wait is MaxAttempts x DefaultRetryDelay.
const DefaultRetryDelay = 30 * time.Second

// RetryPolicy retries an operation on lock contention with a fixed delay.
// The sleep function is injectable so tests run with a fake clock.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	sleep func(time.Duration)
}

func NewRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay, sleep: time.Sleep}
}

// Do runs op, pausing and retrying while op fails with lock contention.
// After the attempts are exhausted the last error surfaces wrapped as
// ErrLockContention.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = op()
		if err == nil || !IsLockContention(err) {
			return err
		}

		if attempt < attempts {
			log.Warn("Target is locked by another process, waiting",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.Duration("delay", p.Delay))
			sleep(p.Delay)
		}
	}

	return common.E(common.ErrLockContention, "download.Retry", err)
}

// IsLockContention classifies errors raised when another process holds the
// target open exclusively. Shared repository directories make this an
// expected condition, not a failure.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrLockContention) {
		return true
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		var errno syscall.Errno
		if errors.As(pathErr.Err, &errno) {
			switch errno {
			case syscall.EBUSY, syscall.EAGAIN, syscall.ETXTBSY:
				return true
			}
		}
	}

	return false
}
