package application

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type stubClock struct {
	mu sync.Mutex
	at time.Time
}

func newStubClock() *stubClock {
	return &stubClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := newStubClock()
	b := NewBreaker(WithFailureThreshold(3), WithResetTimeout(30*time.Second), WithBreakerClock(clock))

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d: unexpected deny: %v", i, err)
		}
		b.Record(boom)
	}

	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(WithFailureThreshold(3))

	boom := errors.New("boom")
	b.Record(boom)
	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	b.Record(boom)

	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after interleaved success, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbeThenClose(t *testing.T) {
	clock := newStubClock()
	b := NewBreaker(WithFailureThreshold(1), WithResetTimeout(30*time.Second), WithHalfOpenMax(1), WithBreakerClock(clock))

	b.Record(errors.New("boom"))
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	clock.Advance(31 * time.Second)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half_open after reset timeout, got %s", b.State())
	}

	// uma sondagem passa; a segunda excede a cota
	if err := b.Allow(); err != nil {
		t.Fatalf("probe call must be allowed: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected probe quota exceeded, got %v", err)
	}

	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := newStubClock()
	b := NewBreaker(WithFailureThreshold(1), WithResetTimeout(30*time.Second), WithBreakerClock(clock))

	b.Record(errors.New("boom"))
	clock.Advance(31 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe call must be allowed: %v", err)
	}
	b.Record(errors.New("boom again"))

	if b.State() != BreakerOpen {
		t.Fatalf("expected reopened circuit, got %s", b.State())
	}
}
