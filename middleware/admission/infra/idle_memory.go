package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/audit"
)

// MemoryIdleProvider deriva o idle state da recência de tráfego:
// sem tráfego há mais de idleAfter → idle; flag crítica externa → critical.
//
// O governor apenas lê o estado; quem registra tráfego é a borda HTTP via
// NoteTraffic.
type MemoryIdleProvider struct {
	mu          sync.Mutex
	lastTraffic time.Time
	critical    bool

	clock     audit.Clock
	idleAfter time.Duration
}

type IdleOption func(*MemoryIdleProvider)

func WithIdleAfter(d time.Duration) IdleOption {
	return func(p *MemoryIdleProvider) {
		if d > 0 {
			p.idleAfter = d
		}
	}
}

func WithIdleClock(c audit.Clock) IdleOption {
	return func(p *MemoryIdleProvider) {
		if c != nil {
			p.clock = c
		}
	}
}

func NewMemoryIdleProvider(opts ...IdleOption) *MemoryIdleProvider {
	p := &MemoryIdleProvider{
		clock:     audit.SystemClock(),
		idleAfter: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastTraffic = p.clock.Now()
	return p
}

func (p *MemoryIdleProvider) State() domain.IdleState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.critical {
		return domain.IdleCritical
	}
	if p.clock.Now().Sub(p.lastTraffic) > p.idleAfter {
		return domain.IdleIdle
	}
	return domain.IdleActive
}

func (p *MemoryIdleProvider) NoteTraffic(_ map[string]string) {
	p.mu.Lock()
	p.lastTraffic = p.clock.Now()
	p.mu.Unlock()
}

// SetCritical liga/desliga o modo crítico (sinal externo, ex: pressão de
// custo ou quota do provider).
func (p *MemoryIdleProvider) SetCritical(v bool) {
	p.mu.Lock()
	p.critical = v
	p.mu.Unlock()
}
