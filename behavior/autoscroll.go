package behavior

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/traverse"
	"github.com/webrecorder/autobrowser/wait"
)

// AutoScroll is the fallback behavior: scroll the page toward the bottom
// one viewport-sized increment per step until the extent stops growing. It
// implements Builder.
func AutoScroll(page *rod.Page, cfg config.BehaviorConfig, pause *atomic.Bool) (traverse.Iterator, error) {
	return &autoScroll{
		scroller: traverse.NewPageScroller(page),
		cfg:      cfg,
		pause:    pause,
	}, nil
}

// scrollDriver is the slice of the page scroller autoscroll needs.
type scrollDriver interface {
	State(ctx context.Context) (traverse.ScrollState, error)
	ScrollBy(ctx context.Context, dy float64) error
}

type autoScroll struct {
	scroller scrollDriver
	cfg      config.BehaviorConfig
	pause    *atomic.Bool

	steps  int
	waited bool
	done   bool
}

// Next scrolls one increment. The end condition mirrors the feed
// traversal: no extent left gets one load wait before the run is declared
// exhausted, and any successful scroll resets that budget.
func (a *autoScroll) Next(ctx context.Context) (*models.Step, error) {
	for {
		if a.done {
			return nil, traverse.ErrExhausted
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.paused() {
			return nil, traverse.ErrPaused
		}

		state, err := a.scroller.State(ctx)
		if err != nil {
			return nil, err
		}
		if !state.CanScrollMore() {
			if a.waited {
				a.done = true
				return nil, traverse.ErrExhausted
			}
			// Suspend on a pause before spending the wait budget, so the
			// load wait still happens after resume.
			if a.paused() {
				return nil, traverse.ErrPaused
			}
			a.waited = true
			if err := wait.Sleep(ctx, a.cfg.LoadWait); err != nil {
				return nil, err
			}
			continue
		}
		a.waited = false

		// Partial viewport increments keep lazy loaders inside their
		// trigger margins.
		if err := a.scroller.ScrollBy(ctx, state.ViewportHeight*0.8); err != nil {
			return nil, err
		}
		// A pause arriving after the scroll skips the inter-scroll delay:
		// the step is already earned and control goes back to the driver
		// at once.
		if !a.paused() {
			if err := wait.Sleep(ctx, a.cfg.ScrollInterval); err != nil {
				return nil, err
			}
		}

		a.steps++
		return &models.Step{
			Node: fmt.Sprintf("scroll-%d", a.steps),
			Kind: models.StepLeaf,
		}, nil
	}
}

func (a *autoScroll) paused() bool {
	return a.pause != nil && a.pause.Load()
}
