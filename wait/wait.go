// Package wait holds the suspension primitives every behavior shares:
// fixed delays for async rendering of unknown duration, and predicate
// polling for conditions that become true.
package wait

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll evaluates pred immediately and then once per interval until it returns
// true, it returns an error, or ctx is done.
func Poll(ctx context.Context, interval time.Duration, pred func(context.Context) (bool, error)) error {
	ok, err := pred(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ok, err := pred(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}

// MoreChildren polls count until it reports at least base+n, tolerating the
// asynchronous arrival of new child nodes. A zero timeout means no deadline
// beyond ctx itself.
func MoreChildren(ctx context.Context, count func(context.Context) (int, error), base, n int, interval, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return Poll(ctx, interval, func(ctx context.Context) (bool, error) {
		current, err := count(ctx)
		if err != nil {
			return false, err
		}
		return current >= base+n, nil
	})
}

// First runs a and b concurrently and returns the result of whichever
// resolves first. The loser's context is cancelled immediately and First
// waits for it to return before reporting, so no recurring work leaks past
// the call. The returned index is 0 for a, 1 for b.
func First[T any](ctx context.Context, a, b func(context.Context) (T, error)) (T, int, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx int
		val T
		err error
	}

	results := make(chan outcome, 2)
	run := func(idx int, fn func(context.Context) (T, error)) {
		val, err := fn(raceCtx)
		results <- outcome{idx: idx, val: val, err: err}
	}
	go run(0, a)
	go run(1, b)

	first := <-results
	cancel()
	// Wait for the loser so its timers and goroutine are gone before the
	// caller moves on.
	<-results

	return first.val, first.idx, first.err
}
