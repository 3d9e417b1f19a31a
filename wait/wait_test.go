package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSleep_Completes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v, expected at least 20ms", elapsed)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Sleep(ctx, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSleep_ZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero-duration Sleep should return immediately without error, got %v", err)
	}
}

func TestPoll_ImmediateTrue(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), time.Hour, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 predicate call, got %d", calls)
	}
}

func TestPoll_BecomesTrue(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 5*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 predicate calls, got %d", calls)
	}
}

func TestPoll_PredicateError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(context.Background(), time.Hour, func(context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected predicate error, got %v", err)
	}
}

func TestPoll_ContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Poll(ctx, 5*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMoreChildren_Arrive(t *testing.T) {
	var n atomic.Int64
	go func() {
		time.Sleep(15 * time.Millisecond)
		n.Store(20)
	}()

	count := func(context.Context) (int, error) { return int(n.Load()), nil }
	err := MoreChildren(context.Background(), count, 12, 8, 5*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("MoreChildren: %v", err)
	}
}

func TestMoreChildren_Timeout(t *testing.T) {
	count := func(context.Context) (int, error) { return 12, nil }
	err := MoreChildren(context.Background(), count, 12, 8, 5*time.Millisecond, 30*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFirst_FasterWins(t *testing.T) {
	fast := func(ctx context.Context) (string, error) {
		return "fast", nil
	}
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	val, idx, err := First(context.Background(), fast, slow)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if idx != 0 || val != "fast" {
		t.Errorf("expected winner 0 %q, got %d %q", "fast", idx, val)
	}
}

func TestFirst_LoserCancelled(t *testing.T) {
	loserCancelled := make(chan struct{})

	winner := func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	}
	loser := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(loserCancelled)
		return 0, ctx.Err()
	}

	_, idx, err := First(context.Background(), winner, loser)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if idx != 0 {
		t.Errorf("expected winner index 0, got %d", idx)
	}

	select {
	case <-loserCancelled:
	default:
		t.Error("loser was not cancelled before First returned")
	}
}

func TestFirst_WinnerError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(ctx context.Context) (int, error) {
		return 0, boom
	}
	hanging := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, idx, err := First(context.Background(), failing, hanging)
	if idx != 0 || !errors.Is(err, boom) {
		t.Errorf("expected (0, boom), got (%d, %v)", idx, err)
	}
}
