package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseBackoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res != 42 {
		t.Errorf("expected 42, got %d", res)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("bad request")
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_NotifiesBeforeWait(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy(3)
	p.OnRetry = func(err error, d time.Duration) { waits = append(waits, d) }

	_, _ = Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	})
	if len(waits) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(waits))
	}
	if waits[1] < waits[0] {
		t.Errorf("expected non-decreasing backoff, got %v", waits)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseBackoff: time.Second}, func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

type throttled struct{ wait time.Duration }

func (e *throttled) Error() string             { return "429 too many requests" }
func (e *throttled) RetryAfter() time.Duration { return e.wait }

func TestDo_HonorsRetryAfter(t *testing.T) {
	p := fastPolicy(2)
	p.MaxBackoff = 40 * time.Millisecond

	var waits []time.Duration
	p.OnRetry = func(err error, wait time.Duration) { waits = append(waits, wait) }

	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, &throttled{wait: time.Hour}
	})

	var th *throttled
	if !errors.As(err, &th) {
		t.Fatalf("expected the provider error back, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if len(waits) != 1 || waits[0] != 40*time.Millisecond {
		t.Errorf("expected one wait capped at 40ms, got %v", waits)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{"-3", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
