// Package traverse implements the resumable traversal engine: a
// cooperatively scheduled iterator that visits everything reachable on a
// page by scrolling and clicking, one externally driven step at a time.
package traverse

import (
	"context"
	"errors"

	"github.com/webrecorder/autobrowser/models"
)

// ErrExhausted is returned by Next when a traversal has produced every step
// it ever will. It is the normal terminal state, not a failure.
var ErrExhausted = errors.New("traverse: exhausted")

// ErrPaused is returned by Next when the process-wide pause flag was set.
// The traversal is resumable: calling Next again after the flag clears
// continues from the same point.
var ErrPaused = errors.New("traverse: paused")

// Iterator is the single-step traversal contract. Each Next call resumes the
// traversal to its next suspension point and yields exactly one step. Any
// other error than ErrExhausted / ErrPaused is terminal for the traversal:
// the page is in unknown state and continuing is unsafe.
//
// Iterators are not safe for concurrent use; the driver must not call Next
// again while a previous call is pending.
type Iterator interface {
	Next(ctx context.Context) (*models.Step, error)
}

// Func adapts a plain function to an Iterator.
type Func func(ctx context.Context) (*models.Step, error)

// Next implements Iterator.
func (f Func) Next(ctx context.Context) (*models.Step, error) { return f(ctx) }

// Empty is an Iterator that is exhausted from the start.
var Empty Iterator = Func(func(context.Context) (*models.Step, error) {
	return nil, ErrExhausted
})

// Steps returns an Iterator yielding the given steps in order. Useful for
// detail sub-traversals whose work is known up front.
func Steps(steps ...models.Step) Iterator {
	i := 0
	return Func(func(ctx context.Context) (*models.Step, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(steps) {
			return nil, ErrExhausted
		}
		step := steps[i]
		i++
		return &step, nil
	})
}

// Chain concatenates iterators: each is drained before the next starts.
// This is the sequence-flattening primitive sub-traversals compose with.
func Chain(iters ...Iterator) Iterator {
	idx := 0
	return Func(func(ctx context.Context) (*models.Step, error) {
		for idx < len(iters) {
			step, err := iters[idx].Next(ctx)
			if errors.Is(err, ErrExhausted) {
				idx++
				continue
			}
			return step, err
		}
		return nil, ErrExhausted
	})
}
