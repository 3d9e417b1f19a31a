package behavior

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/traverse"
)

// fakeScrollDriver replays scripted geometry readings, repeating the last
// one. The hooks model page or driver activity arriving mid-step.
type fakeScrollDriver struct {
	states     []traverse.ScrollState
	calls      int
	scrolls    int
	onState    func(call int)
	onScrollBy func()
}

func scrollable() traverse.ScrollState {
	return traverse.ScrollState{Offset: 0, ViewportHeight: 100, MaxExtent: 1000}
}

func stuck() traverse.ScrollState {
	return traverse.ScrollState{Offset: 900, ViewportHeight: 100, MaxExtent: 1000}
}

func (d *fakeScrollDriver) State(context.Context) (traverse.ScrollState, error) {
	idx := d.calls
	d.calls++
	if d.onState != nil {
		d.onState(d.calls)
	}
	if idx >= len(d.states) {
		idx = len(d.states) - 1
	}
	return d.states[idx], nil
}

func (d *fakeScrollDriver) ScrollBy(context.Context, float64) error {
	d.scrolls++
	if d.onScrollBy != nil {
		d.onScrollBy()
	}
	return nil
}

// A pause landing between the geometry read and the load wait must suspend
// without spending the single wait budget, so content still gets its load
// wait after resume.
func TestAutoScroll_PauseBeforeLoadWaitKeepsBudget(t *testing.T) {
	var pause atomic.Bool
	drv := &fakeScrollDriver{
		states: []traverse.ScrollState{
			scrollable(), stuck(), stuck(), scrollable(), stuck(), stuck(),
		},
		onState: func(call int) {
			if call == 2 {
				pause.Store(true)
			}
		},
	}
	a := &autoScroll{
		scroller: drv,
		cfg:      config.BehaviorConfig{LoadWait: time.Millisecond},
		pause:    &pause,
	}

	ctx := context.Background()
	step, err := a.Next(ctx)
	if err != nil || step.Node != "scroll-1" {
		t.Fatalf("first step: %v, %v", step, err)
	}

	if _, err := a.Next(ctx); !errors.Is(err, traverse.ErrPaused) {
		t.Fatalf("paused Next err = %v, want ErrPaused", err)
	}

	pause.Store(false)
	step, err = a.Next(ctx)
	if err != nil || step.Node != "scroll-2" {
		t.Fatalf("resumed step: %v, %v (load wait budget spent by pause)", step, err)
	}

	if _, err := a.Next(ctx); !errors.Is(err, traverse.ErrExhausted) {
		t.Fatalf("final err = %v, want ErrExhausted", err)
	}
	if drv.scrolls != 2 {
		t.Errorf("scrolls = %d, want 2", drv.scrolls)
	}
}

// A pause arriving right after a scroll skips the inter-scroll delay: the
// earned step is returned at once and the next call reports the pause.
func TestAutoScroll_PauseSkipsInterScrollDelay(t *testing.T) {
	var pause atomic.Bool
	drv := &fakeScrollDriver{states: []traverse.ScrollState{scrollable()}}
	drv.onScrollBy = func() { pause.Store(true) }

	a := &autoScroll{
		scroller: drv,
		cfg:      config.BehaviorConfig{ScrollInterval: time.Hour},
		pause:    &pause,
	}

	ctx := context.Background()
	step, err := a.Next(ctx)
	if err != nil || step.Node != "scroll-1" {
		t.Fatalf("first step: %v, %v", step, err)
	}
	if _, err := a.Next(ctx); !errors.Is(err, traverse.ErrPaused) {
		t.Fatalf("paused Next err = %v, want ErrPaused", err)
	}
}
