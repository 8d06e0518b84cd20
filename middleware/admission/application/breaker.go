package application

import (
	"errors"
	"sync"
	"time"

	"admission-gateway/middleware/audit"
)

// BreakerState é o estado do circuito: CLOSED → OPEN → HALF_OPEN → CLOSED.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

var ErrBreakerOpen = errors.New("admission: circuit breaker aberto, falhando rápido")

// Breaker evita cascata de falhas contra o provider: depois de
// failureThreshold erros seguidos o circuito abre; passado resetTimeout ele
// admite até halfOpenMax chamadas de sondagem antes de fechar de novo.
type Breaker struct {
	mu            sync.Mutex
	clock         audit.Clock
	state         BreakerState
	failures      int
	lastFailure   time.Time
	halfOpenCalls int

	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
}

type BreakerOption func(*Breaker)

func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.failureThreshold = n }
}

func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.resetTimeout = d }
}

func WithHalfOpenMax(n int) BreakerOption {
	return func(b *Breaker) { b.halfOpenMax = n }
}

func WithBreakerClock(c audit.Clock) BreakerOption {
	return func(b *Breaker) {
		if c != nil {
			b.clock = c
		}
	}
}

func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		clock:            audit.SystemClock(),
		state:            BreakerClosed,
		failureThreshold: 5,
		resetTimeout:     30 * time.Second,
		halfOpenMax:      1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow decide se uma chamada pode sair agora. Retorna ErrBreakerOpen quando
// o circuito está aberto ou a cota de sondagem do half-open esgotou.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.clock.Now().Sub(b.lastFailure) < b.resetTimeout {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
	}

	if b.state == BreakerHalfOpen {
		if b.halfOpenCalls >= b.halfOpenMax {
			return ErrBreakerOpen
		}
		b.halfOpenCalls++
	}
	return nil
}

// Record registra o resultado de uma chamada liberada por Allow.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = b.clock.Now()
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
		}
		return
	}

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.halfOpenCalls = 0
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	// transição OPEN→HALF_OPEN é visível também pela consulta
	if b.state == BreakerOpen && b.clock.Now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
	}
	return b.state
}
