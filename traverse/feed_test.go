package traverse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webrecorder/autobrowser/models"
)

// fakeCandidate records marking and scrolling for assertions. onScroll,
// when set, runs inside Scroll to model page-side activity mid-visit.
type fakeCandidate struct {
	key       string
	kind      models.StepKind
	needsWait bool
	attached  bool
	marks     int
	scrolls   int
	detail    Iterator
	onScroll  func()
}

func newFakeCandidate(key string) *fakeCandidate {
	return &fakeCandidate{key: key, kind: models.StepLeaf, attached: true}
}

func (c *fakeCandidate) Key() string           { return c.key }
func (c *fakeCandidate) Kind() models.StepKind { return c.kind }
func (c *fakeCandidate) NeedsWait() bool       { return c.needsWait }

func (c *fakeCandidate) Attached(context.Context) (bool, error) { return c.attached, nil }

func (c *fakeCandidate) Mark(context.Context) error {
	c.marks++
	return nil
}

func (c *fakeCandidate) Scroll(context.Context) error {
	c.scrolls++
	if c.onScroll != nil {
		c.onScroll()
	}
	return nil
}

func (c *fakeCandidate) Detail(context.Context) (Iterator, error) {
	return c.detail, nil
}

// fakeSource replays scripted query results; the last result repeats once
// the script runs out, mirroring a page that stopped producing content.
// onQuery, when set, runs at the start of every query to model concurrent
// page activity while the engine is mid-advance.
type fakeSource struct {
	results [][]Candidate
	queries int
	err     error
	onQuery func(query int)
}

func (s *fakeSource) Candidates(context.Context) ([]Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := s.queries
	s.queries++
	if s.onQuery != nil {
		s.onQuery(s.queries)
	}
	if idx >= len(s.results) {
		if len(s.results) == 0 {
			return nil, nil
		}
		idx = len(s.results) - 1
	}
	return s.results[idx], nil
}

// fakeScroller replays scripted extent answers, repeating the last one.
type fakeScroller struct {
	answers []bool
	calls   int
}

func (s *fakeScroller) CanScrollMore(context.Context) (bool, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.answers) {
		if len(s.answers) == 0 {
			return false, nil
		}
		idx = len(s.answers) - 1
	}
	return s.answers[idx], nil
}

func candidates(keys ...string) []Candidate {
	out := make([]Candidate, len(keys))
	for i, k := range keys {
		out[i] = newFakeCandidate(k)
	}
	return out
}

// drain runs the feed to exhaustion and returns the yielded node keys.
func drain(t *testing.T, f *Feed) []string {
	t.Helper()
	var keys []string
	for {
		step, err := f.Next(context.Background())
		if errors.Is(err, ErrExhausted) {
			return keys
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		keys = append(keys, step.Node)
		if len(keys) > 1000 {
			t.Fatal("feed did not terminate")
		}
	}
}

func TestFeed_VisitsInDiscoveryOrder(t *testing.T) {
	batch := candidates("a", "b", "c")
	src := &fakeSource{results: [][]Candidate{batch, nil}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	got := drain(t, f)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if f.StepCount() != 3 {
		t.Errorf("StepCount = %d, want 3", f.StepCount())
	}
}

func TestFeed_MarksEachCandidateExactlyOnce(t *testing.T) {
	a := newFakeCandidate("a")
	b := newFakeCandidate("b")
	// Later queries keep returning the same nodes; the seen set must keep
	// them from being visited twice.
	src := &fakeSource{results: [][]Candidate{
		{a, b},
		{a, b},
		{a, b},
	}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	got := drain(t, f)
	if len(got) != 2 {
		t.Fatalf("yielded %d steps, want 2: %v", len(got), got)
	}
	if a.marks != 1 || b.marks != 1 {
		t.Errorf("marks = %d/%d, want 1/1", a.marks, b.marks)
	}
	if a.scrolls != 1 || b.scrolls != 1 {
		t.Errorf("scrolls = %d/%d, want 1/1", a.scrolls, b.scrolls)
	}
}

func TestFeed_LateContentAppendsBehindPending(t *testing.T) {
	// First query finds 12 rows; while they are being visited a later
	// query surfaces 8 more. The new rows must land behind the pending
	// ones, and the run must end at exactly 20 steps.
	first := make([]string, 12)
	for i := range first {
		first[i] = string(rune('a' + i))
	}
	second := make([]string, 8)
	for i := range second {
		second[i] = string(rune('m' + i))
	}

	src := &fakeSource{results: [][]Candidate{
		candidates(first...),
		candidates(append(append([]string{}, first...), second...)...),
		nil,
	}}
	sc := &fakeScroller{answers: []bool{true}}
	f := NewFeed(src, sc, FeedConfig{})

	got := drain(t, f)
	if len(got) != 20 {
		t.Fatalf("yielded %d steps, want 20", len(got))
	}
	for i, k := range append(first, second...) {
		if got[i] != k {
			t.Fatalf("step %d: got %q, want %q", i, got[i], k)
		}
	}
}

func TestFeed_EndsWithoutWaitWhenNoExtentRemains(t *testing.T) {
	src := &fakeSource{results: [][]Candidate{candidates("a"), nil}}
	sc := &fakeScroller{answers: []bool{false}}
	f := NewFeed(src, sc, FeedConfig{})

	got := drain(t, f)
	if len(got) != 1 {
		t.Fatalf("yielded %d steps, want 1", len(got))
	}
	// Empty re-query with no extent left must finish without the load
	// wait: only the one extent check happens.
	if sc.calls != 1 {
		t.Errorf("CanScrollMore calls = %d, want 1", sc.calls)
	}
	if src.queries != 2 {
		t.Errorf("source queries = %d, want 2", src.queries)
	}
}

func TestFeed_SingleLoadWaitThenDone(t *testing.T) {
	// Extent remains but nothing ever arrives: exactly one load wait is
	// spent, then the traversal ends instead of waiting forever.
	src := &fakeSource{results: [][]Candidate{candidates("a"), nil, nil}}
	sc := &fakeScroller{answers: []bool{true}}
	f := NewFeed(src, sc, FeedConfig{})

	got := drain(t, f)
	if len(got) != 1 {
		t.Fatalf("yielded %d steps, want 1", len(got))
	}
	// Query 1 discovers, query 2 comes back empty, query 3 is the
	// post-wait retry. No fourth query may happen.
	if src.queries != 3 {
		t.Errorf("source queries = %d, want 3", src.queries)
	}
}

func TestFeed_WaitBudgetResetsAfterRefill(t *testing.T) {
	// One wait pays off with new content; a later stall must be allowed
	// its own wait rather than ending immediately.
	src := &fakeSource{results: [][]Candidate{
		candidates("a"),
		nil,
		candidates("a", "b"),
		nil,
		nil,
	}}
	sc := &fakeScroller{answers: []bool{true}}
	f := NewFeed(src, sc, FeedConfig{})

	got := drain(t, f)
	if len(got) != 2 {
		t.Fatalf("yielded %d steps, want 2: %v", len(got), got)
	}
	if src.queries != 5 {
		t.Errorf("source queries = %d, want 5", src.queries)
	}
}

func TestFeed_LoadSignalReplacesFixedWait(t *testing.T) {
	signals := 0
	src := &fakeSource{results: [][]Candidate{candidates("a"), nil, nil}}
	sc := &fakeScroller{answers: []bool{true}}
	f := NewFeed(src, sc, FeedConfig{
		// The fixed sleep would hang the test if it ran.
		LoadWait: time.Hour,
		LoadSignal: func(context.Context) error {
			signals++
			return nil
		},
	})

	got := drain(t, f)
	if len(got) != 1 {
		t.Fatalf("yielded %d steps, want 1", len(got))
	}
	if signals != 1 {
		t.Errorf("load signal ran %d times, want 1", signals)
	}
}

func TestFeed_SkipsDetachedCandidates(t *testing.T) {
	a := newFakeCandidate("a")
	gone := newFakeCandidate("gone")
	gone.attached = false
	b := newFakeCandidate("b")

	src := &fakeSource{results: [][]Candidate{{a, gone, b}, nil}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	got := drain(t, f)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
	if gone.marks != 0 {
		t.Errorf("detached candidate was marked %d times", gone.marks)
	}
	// The detached key still counts as handled: re-queries returning it
	// must not revive it.
	if _, ok := f.seen["gone"]; !ok {
		t.Error("detached key not recorded as seen")
	}
}

func TestFeed_DelegatesDetailBeforeContainerStep(t *testing.T) {
	post := newFakeCandidate("post")
	post.kind = models.StepContainer
	post.detail = Steps(
		models.Step{Node: "post/reply-1", Kind: models.StepLeaf},
		models.Step{Node: "post/reply-2", Kind: models.StepLeaf},
	)

	src := &fakeSource{results: [][]Candidate{{post}, nil}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	got := drain(t, f)
	want := []string{"post/reply-1", "post/reply-2", "post"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFeed_PauseSuspendsAndResumes(t *testing.T) {
	var pause atomic.Bool
	src := &fakeSource{results: [][]Candidate{candidates("a", "b"), nil}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{Pause: &pause})

	ctx := context.Background()
	step, err := f.Next(ctx)
	if err != nil || step.Node != "a" {
		t.Fatalf("first step: %v, %v", step, err)
	}

	pause.Store(true)
	if _, err := f.Next(ctx); !errors.Is(err, ErrPaused) {
		t.Fatalf("paused Next err = %v, want ErrPaused", err)
	}
	if _, err := f.Next(ctx); !errors.Is(err, ErrPaused) {
		t.Fatalf("second paused Next err = %v, want ErrPaused", err)
	}

	pause.Store(false)
	step, err = f.Next(ctx)
	if err != nil || step.Node != "b" {
		t.Fatalf("resumed step: %v, %v", step, err)
	}
	if _, err := f.Next(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("final err = %v, want ErrExhausted", err)
	}
}

func TestFeed_SourceErrorIsTerminal(t *testing.T) {
	boom := errors.New("query failed")
	src := &fakeSource{err: boom}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	if _, err := f.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestFeed_ContextCancellation(t *testing.T) {
	src := &fakeSource{results: [][]Candidate{candidates("a")}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestChain_FlattensInOrder(t *testing.T) {
	it := Chain(
		Steps(models.Step{Node: "1"}),
		Empty,
		Steps(models.Step{Node: "2"}, models.Step{Node: "3"}),
	)

	var got []string
	for {
		step, err := it.Next(context.Background())
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, step.Node)
	}
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

// A pause can land while a re-query is in flight: after the loop-head check
// but before the load wait. The wait budget must not be spent by that
// suspension, or content arriving during the wait is lost after resume.
func TestFeed_PauseDuringRefillPreservesLoadWait(t *testing.T) {
	var pause atomic.Bool
	var signals int

	src := &fakeSource{
		results: [][]Candidate{
			candidates("a"),
			nil,
			nil,
			candidates("b"),
			nil,
		},
		onQuery: func(query int) {
			if query == 2 {
				pause.Store(true)
			}
		},
	}
	f := NewFeed(src, &fakeScroller{answers: []bool{true, true, false}}, FeedConfig{
		LoadWait: time.Hour,
		LoadSignal: func(context.Context) error {
			signals++
			return nil
		},
		Pause: &pause,
	})

	ctx := context.Background()
	step, err := f.Next(ctx)
	if err != nil || step.Node != "a" {
		t.Fatalf("first step: %v, %v", step, err)
	}

	if _, err := f.Next(ctx); !errors.Is(err, ErrPaused) {
		t.Fatalf("mid-refill pause err = %v, want ErrPaused", err)
	}
	if signals != 0 {
		t.Fatalf("load wait ran while paused (%d signals)", signals)
	}

	pause.Store(false)
	step, err = f.Next(ctx)
	if err != nil || step.Node != "b" {
		t.Fatalf("resumed step: %v, %v (late content lost)", step, err)
	}
	if signals != 1 {
		t.Errorf("signals = %d, want exactly one load wait after resume", signals)
	}

	if _, err := f.Next(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("final err = %v, want ErrExhausted", err)
	}
}

// A pause arriving mid-visit suspends without the settle sleep and without
// losing the visited candidate's step: the resumed run yields it next.
func TestFeed_PauseDuringVisitKeepsStagedStep(t *testing.T) {
	var pause atomic.Bool
	cand := newFakeCandidate("a")
	cand.onScroll = func() { pause.Store(true) }

	src := &fakeSource{results: [][]Candidate{{cand}, nil}}
	f := NewFeed(src, &fakeScroller{}, FeedConfig{
		SettleDelay: time.Hour,
		Pause:       &pause,
	})

	ctx := context.Background()
	if _, err := f.Next(ctx); !errors.Is(err, ErrPaused) {
		t.Fatalf("mid-visit pause err = %v, want ErrPaused", err)
	}
	if cand.marks != 1 {
		t.Fatalf("marks = %d, want 1", cand.marks)
	}

	pause.Store(false)
	step, err := f.Next(ctx)
	if err != nil || step.Node != "a" {
		t.Fatalf("resumed step: %v, %v (staged step lost)", step, err)
	}
	if _, err := f.Next(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("final err = %v, want ErrExhausted", err)
	}
}
