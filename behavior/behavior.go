// Package behavior binds a traversal to a live page and exposes the
// externally driven step protocol: one Advance call per resumption, a
// process-wide pause flag, and a shared outlink collector with an externally
// managed lifecycle.
package behavior

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/outlinks"
	"github.com/webrecorder/autobrowser/traverse"
)

// pauseFlagJS mirrors the pause flag into the page so in-page scripts can
// sample the same signal the engine does.
const pauseFlagJS = `(v) => { window.$WBBehaviorPaused = v; }`

// Behavior is one page-bound traversal run. It is lazily initialized: the
// iterator is built on the first Advance call, not at construction. Not safe
// for concurrent Advance calls; the guard rejects reentrancy instead of
// blocking.
type Behavior struct {
	name  string
	page  *rod.Page
	cfg   config.BehaviorConfig
	build Builder

	outlinks        *outlinks.Collector
	collectOutlinks bool

	pause *atomic.Bool
	busy  atomic.Bool

	iter  traverse.Iterator
	steps int
	done  bool
}

// New creates a Behavior over page. The collector is shared, caller-owned
// state: it survives the behavior and is cleared externally between runs.
func New(name string, page *rod.Page, cfg config.BehaviorConfig, build Builder, collector *outlinks.Collector, collectOutlinks bool) *Behavior {
	return &Behavior{
		name:            name,
		page:            page,
		cfg:             cfg,
		build:           build,
		outlinks:        collector,
		collectOutlinks: collectOutlinks,
		pause:           &atomic.Bool{},
	}
}

// Name reports the registry name this behavior was built under.
func (b *Behavior) Name() string { return b.name }

// Done reports whether the traversal has produced every step it ever will.
func (b *Behavior) Done() bool { return b.done }

// StepCount reports how many Advance calls yielded work so far.
func (b *Behavior) StepCount() int { return b.steps }

// Outlinks returns the shared collector.
func (b *Behavior) Outlinks() *outlinks.Collector { return b.outlinks }

// Paused reports the current pause flag.
func (b *Behavior) Paused() bool { return b.pause.Load() }

// SetPaused flips the pause flag and mirrors it into the page. The page
// mirror is best effort; the engine-side flag is authoritative.
func (b *Behavior) SetPaused(ctx context.Context, paused bool) {
	b.pause.Store(paused)
	if b.page == nil {
		return
	}
	if _, err := b.page.Context(ctx).Eval(pauseFlagJS, paused); err != nil {
		slog.Debug("pause flag mirror failed", "behavior", b.name, "error", err)
	}
}

// Advance resumes the traversal to its next suspension point. Exactly one
// resumption happens per call; done is the normal terminal state, not an
// error. A paused behavior reports wait without consuming a step.
func (b *Behavior) Advance(ctx context.Context) (*models.StepResult, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return nil, models.NewBehaviorError(models.ErrCodeInvalidInput,
			"advance called while a previous call is pending", nil)
	}
	defer b.busy.Store(false)

	if b.done {
		return &models.StepResult{Done: true}, nil
	}

	if b.iter == nil {
		iter, err := b.build(b.page, b.cfg, b.pause)
		if err != nil {
			return nil, err
		}
		b.iter = iter
	}

	step, err := b.iter.Next(ctx)
	switch {
	case errors.Is(err, traverse.ErrExhausted):
		b.done = true
		b.harvestOutlinks(ctx)
		return &models.StepResult{Done: true}, nil
	case errors.Is(err, traverse.ErrPaused):
		return &models.StepResult{Wait: true}, nil
	case err != nil:
		return nil, err
	}

	b.steps++
	b.harvestOutlinks(ctx)
	slog.Debug("behavior step", "behavior", b.name, "step", b.steps, "node", step.Node, "kind", step.Kind)
	return &models.StepResult{Wait: step.Wait}, nil
}

// harvestOutlinks scans the page's anchors after each step. Collection
// failures never fail the step.
func (b *Behavior) harvestOutlinks(ctx context.Context) {
	if !b.collectOutlinks || b.page == nil {
		return
	}
	added, err := b.outlinks.CollectFrom(b.page.Context(ctx))
	if err != nil {
		slog.Debug("outlink collection failed", "behavior", b.name, "error", err)
		return
	}
	if added > 0 {
		slog.Debug("outlinks collected", "behavior", b.name, "added", added, "total", b.outlinks.Len())
	}
}
