package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_BurstThenLimited(t *testing.T) {
	l := New(Config{Requests: 3, Window: 3 * time.Second})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := l.AllowAt("call-1", now); err != nil {
			t.Fatalf("request %d: unexpected %v", i, err)
		}
	}

	err := l.AllowAt("call-1", now)
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatal("expected *LimitError")
	}
	if le.RetryAfter <= 0 || le.RetryAfter > time.Second {
		t.Errorf("expected retry within one refill interval, got %s", le.RetryAfter)
	}
	if le.RetryAfterSeconds() != 1 {
		t.Errorf("expected 1 second hint, got %d", le.RetryAfterSeconds())
	}

	if err := l.AllowAt("call-1", now.Add(time.Second)); err != nil {
		t.Errorf("expected refill after interval, got %v", err)
	}
}

func TestAllow_RejectedRequestsDoNotConsume(t *testing.T) {
	l := New(Config{Requests: 1, Window: time.Second})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := l.AllowAt("c", now); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := l.AllowAt("c", now); err == nil {
			t.Fatal("expected limit")
		}
	}
	if err := l.AllowAt("c", now.Add(time.Second)); err != nil {
		t.Errorf("expected token after one window despite rejections, got %v", err)
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(Config{Requests: 1, Window: time.Minute})
	now := time.Now()
	if err := l.AllowAt("a", now); err != nil {
		t.Fatal(err)
	}
	if err := l.AllowAt("b", now); err != nil {
		t.Errorf("expected separate bucket for b, got %v", err)
	}
}

func TestAllow_Disabled(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("x"); err != nil {
			t.Fatalf("expected no limit, got %v", err)
		}
	}
	var nilLimiter *Limiter
	if err := nilLimiter.Allow("x"); err != nil {
		t.Errorf("nil limiter must allow, got %v", err)
	}
}

func TestForgetAndGC(t *testing.T) {
	l := New(Config{Requests: 1, Window: time.Minute, MaxEntries: 2, EntryTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = l.AllowAt("a", now)
	_ = l.AllowAt("b", now)
	l.Forget("a")
	if l.Len() != 1 {
		t.Fatalf("expected 1 entry after forget, got %d", l.Len())
	}

	_ = l.AllowAt("c", now)
	_ = l.AllowAt("d", now.Add(2*time.Minute))
	if l.Len() != 1 {
		t.Errorf("expected stale entries collected, got %d", l.Len())
	}
}
