package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrPassThrough não é um erro de verdade: sinaliza "sem payload, nada a
// governar". O chamador deve seguir o fluxo normal da request.
var ErrPassThrough = errors.New("admission: sem payload, nada a governar")

// RateLimitError equivale a um 429: a janela deslizante está cheia para o
// limite efetivo atual.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("admission: rate limit excedido, tente em %ds", e.RetryAfterSeconds)
}

// TimeoutError indica que o timeout configurado venceu antes do provider
// responder. O resultado atrasado, se vier, é descartado.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("admission: provider não respondeu em %s", e.Elapsed)
}

// ProviderError embrulha qualquer erro levantado pelo provider (direto ou em
// lote). O governor não faz retry; isso é decisão do chamador.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("admission: provider falhou: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
