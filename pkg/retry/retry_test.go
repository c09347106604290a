package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastConfig = Config{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}

func TestDoSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig, nil, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetryThenSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig, nil, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	last := errors.New("still failing")
	_, err := Do(context.Background(), fastConfig, nil, func(context.Context) (int, error) {
		calls++
		return 0, last
	})
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want %v", err, last)
	}
	if calls != fastConfig.MaxRetries+1 {
		t.Errorf("expected %d calls, got %d", fastConfig.MaxRetries+1, calls)
	}
}

func TestDoPermanent(t *testing.T) {
	calls := 0
	denied := errors.New("invalid_client")
	_, err := Do(context.Background(), fastConfig, nil, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(denied)
	})
	if err != denied {
		t.Errorf("err = %v, want unwrapped %v", err, denied)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := Config{MaxRetries: 5, InitialWait: time.Hour, Multiplier: 2}

	calls := 0
	_, err := Do(ctx, rc, nil, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoff(t *testing.T) {
	rc := Config{InitialWait: time.Second, MaxWait: 5 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(rc, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
