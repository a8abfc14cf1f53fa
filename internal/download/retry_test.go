package download

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/common"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRetryPolicyDo(t *testing.T) {
	contention := &fs.PathError{Op: "open", Path: "/repo/sp100.exe", Err: syscall.EBUSY}

	t.Run("succeeds after contention clears", func(t *testing.T) {
		var slept []time.Duration
		p := NewRetryPolicy(5, time.Second)
		p.sleep = func(d time.Duration) { slept = append(slept, d) }

		calls := 0
		err := p.Do(context.Background(), discardLogger(), func() error {
			calls++
			if calls < 3 {
				return contention
			}

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Equal(t, []time.Duration{time.Second, time.Second}, slept)
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		p := NewRetryPolicy(3, time.Second)
		p.sleep = func(time.Duration) {}

		calls := 0
		err := p.Do(context.Background(), discardLogger(), func() error {
			calls++

			return contention
		})
		require.ErrorIs(t, err, common.ErrLockContention)
		require.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		p := NewRetryPolicy(5, time.Second)
		p.sleep = func(time.Duration) { t.Fatal("must not sleep") }

		boom := errors.New("boom")
		calls := 0
		err := p.Do(context.Background(), discardLogger(), func() error {
			calls++

			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("cancellation stops the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		p := NewRetryPolicy(10, time.Second)
		p.sleep = func(time.Duration) { cancel() }

		err := p.Do(ctx, discardLogger(), func() error { return contention })
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		p := NewRetryPolicy(0, time.Second)

		calls := 0
		require.NoError(t, p.Do(context.Background(), discardLogger(), func() error {
			calls++

			return nil
		}))
		require.Equal(t, 1, calls)
	})
}

func TestIsLockContention(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "sentinel", err: common.ErrLockContention, expected: true},
		{name: "ebusy path error", err: &fs.PathError{Op: "open", Path: "x", Err: syscall.EBUSY}, expected: true},
		{name: "eagain path error", err: &fs.PathError{Op: "open", Path: "x", Err: syscall.EAGAIN}, expected: true},
		{name: "etxtbsy path error", err: &fs.PathError{Op: "open", Path: "x", Err: syscall.ETXTBSY}, expected: true},
		{name: "enoent path error", err: &fs.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, expected: false},
		{name: "plain error", err: errors.New("boom"), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, IsLockContention(tc.err))
		})
	}
}
