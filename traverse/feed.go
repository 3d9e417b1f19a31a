package traverse

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/wait"
)

// Candidate is one discovered node awaiting a visit. Implementations wrap a
// live DOM element or a virtualized-row handle; in both cases Key must be
// stable across re-renders because DOM identity is not.
type Candidate interface {
	// Key identifies the candidate for deduplication.
	Key() string

	// Kind classifies the step this candidate will yield.
	Kind() models.StepKind

	// NeedsWait hints that the driver should allow extra delay after this
	// candidate's step.
	NeedsWait() bool

	// Attached reports whether the node is still part of the document.
	// Candidates detach between discovery and visit when the page prunes
	// or recycles them; the engine skips those without error.
	Attached(ctx context.Context) (bool, error)

	// Mark tags the node as visited in the page, so re-queries never
	// return it again within this run.
	Mark(ctx context.Context) error

	// Scroll brings the node into view, triggering whatever lazy loading
	// its visibility drives.
	Scroll(ctx context.Context) error

	// Detail returns the candidate's detail sub-traversal (expand replies,
	// open an overlay, page a carousel), or nil when the candidate is a
	// plain leaf.
	Detail(ctx context.Context) (Iterator, error)
}

// Source produces the currently reachable candidate set in document order,
// excluding nodes already marked. The engine re-queries instead of caching
// across suspension points: the page mutates underneath it at all times.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Scroller answers whether unexplored scroll extent remains.
type Scroller interface {
	CanScrollMore(ctx context.Context) (bool, error)
}

// FeedConfig tunes a Feed traversal.
type FeedConfig struct {
	// SettleDelay is the fixed wait after bringing a candidate into view.
	SettleDelay time.Duration

	// LoadWait is the single "wait for more content" delay performed when
	// a re-query comes back empty while scroll extent remains.
	LoadWait time.Duration

	// LoadSignal, when set, replaces the fixed LoadWait sleep: it blocks
	// until new content plausibly arrived (a DOM mutation, typically) or
	// its own bound elapsed. Returning early on real arrival keeps fast
	// pages from paying the full wait.
	LoadSignal func(ctx context.Context) error

	// Pause is the process-wide pause flag, sampled at every loop head and
	// before entering any wait. Nil means never paused.
	Pause *atomic.Bool
}

// Feed is the generalized feed/grid traversal: discover candidates, visit
// them in document order (marking, scrolling, settling, delegating to their
// detail sub-traversals), re-query on exhaustion, wait once for late
// content, and terminate when nothing new appears.
//
// Ordering: candidates are visited in the order discovered; nodes found by a
// later re-query are appended behind any still pending, never interleaved
// ahead of them.
type Feed struct {
	source   Source
	scroller Scroller
	cfg      FeedConfig

	pending   []Candidate
	seen      map[string]struct{}
	sub       Iterator
	subOwner  Candidate
	waited    bool
	done      bool
	steps     int
	refillErr error
}

// NewFeed creates a Feed over source and scroller.
func NewFeed(source Source, scroller Scroller, cfg FeedConfig) *Feed {
	return &Feed{
		source:   source,
		scroller: scroller,
		cfg:      cfg,
		seen:     make(map[string]struct{}),
	}
}

// Next resumes the traversal to its next suspension point and yields one
// step. See Iterator for the error contract.
func (f *Feed) Next(ctx context.Context) (*models.Step, error) {
	for {
		if f.done {
			return nil, ErrExhausted
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.paused() {
			return nil, ErrPaused
		}

		// Delegate to an active detail sub-traversal first; the owning
		// container's step is yielded once the sub-traversal drains.
		if f.sub != nil {
			step, err := f.sub.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				f.sub = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			f.steps++
			return step, nil
		}
		if f.subOwner != nil {
			owner := f.subOwner
			f.subOwner = nil
			f.steps++
			return f.stepFor(owner), nil
		}

		if len(f.pending) == 0 {
			proceed, err := f.refillOrFinish(ctx)
			if err != nil {
				return nil, err
			}
			if !proceed {
				f.done = true
				return nil, ErrExhausted
			}
			continue
		}

		candidate := f.pending[0]
		f.pending = f.pending[1:]

		visited, err := f.visit(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !visited {
			continue
		}
		// The visit installed subOwner (and possibly sub); the next loop
		// turn yields the first resulting step.
	}
}

// StepCount reports how many steps this traversal has yielded so far.
func (f *Feed) StepCount() int { return f.steps }

// visit marks, scrolls and settles one candidate, then stages its steps.
// Returns false when the candidate detached between discovery and visit.
func (f *Feed) visit(ctx context.Context, c Candidate) (bool, error) {
	f.seen[c.Key()] = struct{}{}

	attached, err := c.Attached(ctx)
	if err != nil {
		return false, err
	}
	if !attached {
		// Detached between discovery and visit: treat as already handled.
		slog.Debug("candidate detached before visit, skipping", "key", c.Key())
		return false, nil
	}

	if err := c.Mark(ctx); err != nil {
		return false, err
	}
	if err := c.Scroll(ctx); err != nil {
		return false, err
	}

	// A pause arriving mid-visit skips the settle sleep: control returns
	// to the driver promptly and the pause itself gives rendering time to
	// catch up. The candidate's step is staged below either way, so the
	// resumed run still yields it.
	if f.cfg.SettleDelay > 0 && !f.paused() {
		if err := wait.Sleep(ctx, f.cfg.SettleDelay); err != nil {
			return false, err
		}
	}

	sub, err := c.Detail(ctx)
	if err != nil {
		return false, err
	}
	f.sub = sub
	f.subOwner = c
	return true, nil
}

// refillOrFinish re-queries the candidate set when pending is empty. It
// returns true when new candidates were staged. The end condition is the
// conjunction check: nothing new AND either no scroll extent remains or the
// one load wait has already been spent.
func (f *Feed) refillOrFinish(ctx context.Context) (bool, error) {
	if f.refill(ctx) {
		return true, nil
	}
	if err := f.refillErr; err != nil {
		f.refillErr = nil
		return false, err
	}

	more, err := f.scroller.CanScrollMore(ctx)
	if err != nil {
		return false, err
	}
	if !more {
		// No unexplored extent and nothing new: exhausted.
		return false, nil
	}
	if f.waited {
		// Extent remains but the single load wait already passed without
		// producing anything.
		return false, nil
	}

	// The pause check must precede spending the wait budget: a pause that
	// lands mid-advance suspends here with waited still false, so the one
	// load wait actually happens after resume.
	if f.paused() {
		return false, ErrPaused
	}
	f.waited = true
	if f.cfg.LoadSignal != nil {
		if err := f.cfg.LoadSignal(ctx); err != nil {
			return false, err
		}
	} else if err := wait.Sleep(ctx, f.cfg.LoadWait); err != nil {
		return false, err
	}

	if f.refill(ctx) {
		return true, nil
	}
	if err := f.refillErr; err != nil {
		f.refillErr = nil
		return false, err
	}
	return false, nil
}

// refill queries the source and appends unseen candidates to pending.
func (f *Feed) refill(ctx context.Context) bool {
	candidates, err := f.source.Candidates(ctx)
	if err != nil {
		f.refillErr = err
		return false
	}
	added := 0
	for _, c := range candidates {
		if _, ok := f.seen[c.Key()]; ok {
			continue
		}
		f.pending = append(f.pending, c)
		added++
	}
	if added > 0 {
		f.waited = false
	}
	return added > 0
}

func (f *Feed) stepFor(c Candidate) *models.Step {
	return &models.Step{
		Node: c.Key(),
		Kind: c.Kind(),
		Wait: c.NeedsWait(),
	}
}

func (f *Feed) paused() bool {
	return f.cfg.Pause != nil && f.cfg.Pause.Load()
}
