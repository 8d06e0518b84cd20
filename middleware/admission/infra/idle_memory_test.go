package infra

import (
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func TestMemoryIdleProvider_TransitionsWithTraffic(t *testing.T) {
	clock := &manualClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := NewMemoryIdleProvider(WithIdleClock(clock), WithIdleAfter(5*time.Minute))

	if got := p.State(); got != domain.IdleActive {
		t.Fatalf("fresh provider must be active, got %s", got)
	}

	clock.advance(6 * time.Minute)
	if got := p.State(); got != domain.IdleIdle {
		t.Fatalf("expected idle after silence, got %s", got)
	}

	p.NoteTraffic(nil)
	if got := p.State(); got != domain.IdleActive {
		t.Fatalf("traffic must bring it back to active, got %s", got)
	}
}

func TestMemoryIdleProvider_CriticalOverridesRecency(t *testing.T) {
	clock := &manualClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := NewMemoryIdleProvider(WithIdleClock(clock))

	p.SetCritical(true)
	if got := p.State(); got != domain.IdleCritical {
		t.Fatalf("expected critical, got %s", got)
	}

	p.NoteTraffic(nil)
	if got := p.State(); got != domain.IdleCritical {
		t.Fatalf("critical must override traffic recency, got %s", got)
	}

	p.SetCritical(false)
	if got := p.State(); got != domain.IdleActive {
		t.Fatalf("expected active after clearing critical, got %s", got)
	}
}
