package behavior

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/webrecorder/autobrowser/wait"
)

// RunResult summarizes a budgeted behavior run.
type RunResult struct {
	// Steps is the number of steps the behavior yielded.
	Steps int

	// Done reports whether the behavior finished on its own. A run that
	// was cut off by the budget or step limit has Done false and no
	// error: expiry is partial success, not failure.
	Done bool

	// Elapsed is the wall time the run consumed.
	Elapsed time.Duration
}

// waitHintDelay is inserted after a step that asked for extra delay.
const waitHintDelay = 500 * time.Millisecond

// pausedPollDelay spaces Advance calls while the behavior reports paused.
const pausedPollDelay = 250 * time.Millisecond

// Run drives b until it completes, the budget expires, or maxSteps is
// reached (0 means unlimited). Budget expiry and the step limit end the run
// cleanly; only structural faults and browser errors are returned.
func Run(ctx context.Context, b *Behavior, budget time.Duration, maxSteps int) (*RunResult, error) {
	start := time.Now()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	for {
		res, err := b.Advance(ctx)
		if err != nil {
			if budgetExpired(ctx, err) {
				slog.Info("behavior budget expired", "behavior", b.Name(), "steps", b.StepCount())
				return &RunResult{Steps: b.StepCount(), Elapsed: time.Since(start)}, nil
			}
			return nil, err
		}
		if res.Done {
			return &RunResult{Steps: b.StepCount(), Done: true, Elapsed: time.Since(start)}, nil
		}
		if maxSteps > 0 && b.StepCount() >= maxSteps {
			slog.Info("behavior step limit reached", "behavior", b.Name(), "steps", b.StepCount())
			return &RunResult{Steps: b.StepCount(), Elapsed: time.Since(start)}, nil
		}

		var delay time.Duration
		switch {
		case b.Paused():
			delay = pausedPollDelay
		case res.Wait:
			delay = waitHintDelay
		}
		if delay > 0 {
			if err := wait.Sleep(ctx, delay); err != nil {
				if budgetExpired(ctx, err) {
					return &RunResult{Steps: b.StepCount(), Elapsed: time.Since(start)}, nil
				}
				return nil, err
			}
		}
	}
}

// budgetExpired distinguishes the run's own deadline from an outer caller
// cancellation, which still propagates as an error.
func budgetExpired(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)
}
