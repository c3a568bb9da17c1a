package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntervalGrowsAndCaps(t *testing.T) {
	p := Policy{
		MaxAttempts:        5,
		InitialInterval:    5 * time.Second,
		BackoffCoefficient: 2,
		MaxInterval:        30 * time.Second,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 30 * time.Second}, // 40s capped
		{5, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Interval(tc.attempt); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestIntervalWithoutCap(t *testing.T) {
	p := Policy{InitialInterval: 10 * time.Millisecond, BackoffCoefficient: 3}
	if got := p.Interval(3); got != 90*time.Millisecond {
		t.Errorf("Interval(3) = %v, want 90ms", got)
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialInterval: time.Hour, BackoffCoefficient: 2}

	calls := 0
	out, attempts, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || attempts != 1 || calls != 1 {
		t.Fatalf("got out=%q attempts=%d calls=%d", out, attempts, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, BackoffCoefficient: 2}

	boom := errors.New("boom")
	calls := 0
	_, attempts, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("got attempts=%d calls=%d, want 3", attempts, calls)
	}
}

func TestDoRecoversOnLaterAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 4, InitialInterval: time.Millisecond, BackoffCoefficient: 2}

	calls := 0
	out, attempts, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 42 || attempts != 3 {
		t.Fatalf("got out=%d attempts=%d", out, attempts)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialInterval: time.Hour, BackoffCoefficient: 2}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := Do(ctx, p, func(context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	calls := 0
	_, attempts, err := Do(context.Background(), Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if err == nil || attempts != 1 || calls != 1 {
		t.Fatalf("got attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}
