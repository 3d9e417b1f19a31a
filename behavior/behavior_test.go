package behavior

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/outlinks"
	"github.com/webrecorder/autobrowser/traverse"
)

func stepsBuilder(steps ...models.Step) Builder {
	return func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		return traverse.Steps(steps...), nil
	}
}

func newTestBehavior(t *testing.T, build Builder) *Behavior {
	t.Helper()
	return New("test", nil, config.BehaviorConfig{}, build, outlinks.NewCollector(), false)
}

func TestAdvance_YieldsThenDone(t *testing.T) {
	b := newTestBehavior(t, stepsBuilder(
		models.Step{Node: "a", Kind: models.StepLeaf},
		models.Step{Node: "b", Kind: models.StepLeaf, Wait: true},
	))
	ctx := context.Background()

	res, err := b.Advance(ctx)
	if err != nil || res.Done || res.Wait {
		t.Fatalf("step 1: %+v, %v", res, err)
	}
	res, err = b.Advance(ctx)
	if err != nil || res.Done || !res.Wait {
		t.Fatalf("step 2: %+v, %v, want wait hint", res, err)
	}
	res, err = b.Advance(ctx)
	if err != nil || !res.Done {
		t.Fatalf("step 3: %+v, %v, want done", res, err)
	}
	if b.StepCount() != 2 {
		t.Errorf("StepCount = %d, want 2", b.StepCount())
	}

	// Done is sticky: further calls keep reporting it.
	res, err = b.Advance(ctx)
	if err != nil || !res.Done {
		t.Fatalf("post-done: %+v, %v", res, err)
	}
}

func TestAdvance_LazyInitialization(t *testing.T) {
	builds := 0
	build := func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		builds++
		return traverse.Empty, nil
	}
	b := newTestBehavior(t, build)

	if builds != 0 {
		t.Fatalf("builder ran at construction")
	}
	if _, err := b.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	if builds != 1 {
		t.Errorf("builder ran %d times, want 1", builds)
	}
}

func TestAdvance_PausedReportsWaitWithoutConsuming(t *testing.T) {
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, pause *atomic.Bool) (traverse.Iterator, error) {
		inner := traverse.Steps(models.Step{Node: "a"})
		return traverse.Func(func(ctx context.Context) (*models.Step, error) {
			if pause.Load() {
				return nil, traverse.ErrPaused
			}
			return inner.Next(ctx)
		}), nil
	})
	ctx := context.Background()

	b.SetPaused(ctx, true)
	res, err := b.Advance(ctx)
	if err != nil || res.Done || !res.Wait {
		t.Fatalf("paused advance: %+v, %v", res, err)
	}
	if b.StepCount() != 0 {
		t.Errorf("paused advance consumed a step")
	}

	b.SetPaused(ctx, false)
	res, err = b.Advance(ctx)
	if err != nil || res.Done {
		t.Fatalf("resumed advance: %+v, %v", res, err)
	}
	if b.StepCount() != 1 {
		t.Errorf("StepCount = %d, want 1", b.StepCount())
	}
}

func TestAdvance_RejectsReentrancy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		return traverse.Func(func(ctx context.Context) (*models.Step, error) {
			close(entered)
			<-release
			return nil, traverse.ErrExhausted
		}), nil
	})

	go b.Advance(context.Background())
	<-entered

	_, err := b.Advance(context.Background())
	close(release)

	var be *models.BehaviorError
	if !errors.As(err, &be) || be.Code != models.ErrCodeInvalidInput {
		t.Fatalf("concurrent advance err = %v, want invalid input", err)
	}
}

func TestAdvance_TerminalErrorPropagates(t *testing.T) {
	boom := models.NewBehaviorError(models.ErrCodeStructuralMismatch, "container missing", nil)
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		return traverse.Func(func(context.Context) (*models.Step, error) {
			return nil, boom
		}), nil
	})

	if _, err := b.Advance(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_ResolveMatchesHostSuffixAndPathPrefix(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Rule{Name: "feed", HostSuffix: "example.com", PathPrefix: "/feed", Build: stepsBuilder()})
	reg.Register(Rule{Name: "site", HostSuffix: "example.com", Build: stepsBuilder()})

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/feed/home", "feed"},
		{"https://m.example.com/feed", "feed"},
		{"https://example.com/about", "site"},
		{"https://notexample.com/feed", AutoScrollName},
		{"https://badexample.com/", AutoScrollName},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			name, build := reg.Resolve(u)
			if name != tt.want {
				t.Errorf("Resolve(%s) = %q, want %q", tt.url, name, tt.want)
			}
			if build == nil {
				t.Error("nil builder")
			}
		})
	}
}

func TestRegistry_ResolveByName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Rule{Name: "feed", HostSuffix: "example.com", Build: stepsBuilder()})

	if _, ok := reg.ResolveByName("feed"); !ok {
		t.Error("registered name not found")
	}
	if _, ok := reg.ResolveByName(AutoScrollName); !ok {
		t.Error("autoscroll fallback not resolvable by name")
	}
	if _, ok := reg.ResolveByName("nope"); ok {
		t.Error("unknown name resolved")
	}
}

func TestNewFeedRule_ValidatesSelectors(t *testing.T) {
	if _, err := NewFeedRule("ok", "example.com", "", FeedSpec{ItemSelector: "div.item"}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	_, err := NewFeedRule("bad", "example.com", "", FeedSpec{ItemSelector: "div[unclosed"})
	var be *models.BehaviorError
	if !errors.As(err, &be) || be.Code != models.ErrCodeInvalidInput {
		t.Fatalf("invalid selector err = %v, want invalid input", err)
	}

	if _, err := NewFeedRule("bad", "example.com", "", FeedSpec{}); err == nil {
		t.Error("empty spec accepted")
	}

	if _, err := NewFeedRule("bad", "example.com", "", FeedSpec{Virtualized: true}); err == nil {
		t.Error("virtualized spec without host selector accepted")
	}
}

func TestRun_CompletesAndCounts(t *testing.T) {
	b := newTestBehavior(t, stepsBuilder(
		models.Step{Node: "a"},
		models.Step{Node: "b"},
		models.Step{Node: "c"},
	))

	res, err := Run(context.Background(), b, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Steps != 3 {
		t.Errorf("result = %+v, want done with 3 steps", res)
	}
}

func TestRun_StepLimitEndsCleanly(t *testing.T) {
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		n := 0
		return traverse.Func(func(context.Context) (*models.Step, error) {
			n++
			return &models.Step{Node: "x"}, nil
		}), nil
	})

	res, err := Run(context.Background(), b, time.Minute, 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Steps != 5 {
		t.Errorf("result = %+v, want 5 steps not done", res)
	}
}

func TestRun_BudgetExpiryIsPartialSuccess(t *testing.T) {
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		return traverse.Func(func(ctx context.Context) (*models.Step, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
				return &models.Step{Node: "x"}, nil
			}
		}), nil
	})

	res, err := Run(context.Background(), b, 50*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("budget expiry surfaced as error: %v", err)
	}
	if res.Done {
		t.Error("expired run reported done")
	}
	if res.Steps == 0 {
		t.Error("no steps completed before expiry")
	}
}

func TestRun_OuterCancellationIsAnError(t *testing.T) {
	b := newTestBehavior(t, func(_ *rod.Page, _ config.BehaviorConfig, _ *atomic.Bool) (traverse.Iterator, error) {
		return traverse.Func(func(ctx context.Context) (*models.Step, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := Run(ctx, b, time.Minute, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDetailSteps_QueryErrorIsTerminal(t *testing.T) {
	boom := errors.New("page gone")
	it := detailSteps(
		func(context.Context) (rod.Elements, error) { return nil, boom },
		func(context.Context, *rod.Element) error { return nil },
	)

	_, err := it.Next(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if errors.Is(err, traverse.ErrExhausted) {
		t.Fatal("query failure reported as exhaustion")
	}
}

func TestDetailSteps_MarkErrorIsTerminal(t *testing.T) {
	boom := errors.New("mark failed")
	it := detailSteps(
		func(context.Context) (rod.Elements, error) { return rod.Elements{&rod.Element{}}, nil },
		func(context.Context, *rod.Element) error { return boom },
	)

	if _, err := it.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestDetailSteps_YieldsUntilEmpty(t *testing.T) {
	remaining := rod.Elements{&rod.Element{}, &rod.Element{}}
	marked := 0
	it := detailSteps(
		func(context.Context) (rod.Elements, error) { return remaining, nil },
		func(context.Context, *rod.Element) error {
			marked++
			remaining = remaining[1:]
			return nil
		},
	)

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		step, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if step.Kind != models.StepLeaf {
			t.Errorf("step %d kind = %q, want leaf", i, step.Kind)
		}
	}
	if _, err := it.Next(ctx); !errors.Is(err, traverse.ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if marked != 2 {
		t.Errorf("marked = %d, want 2", marked)
	}
}
