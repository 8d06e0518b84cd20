// Package audit define o contrato de auditoria compartilhado entre o
// dispatcher e o governor, além de colaboradores pequenos (Clock, Logger).
//
// Este pacote não depende de net/http nem de implementações concretas.
// As implementações (memória com hash-chain, Redis, Prometheus) ficam em
// audit/infra.
package audit

import (
	"context"
	"log"
	"time"
)

// Event representa um evento de auditoria de decisão ou de admissão.
//
// Name identifica o tipo do evento (ex: "dispatch_decision",
// "admission_timeout"); Action carrega o resultado quando faz sentido
// (allow/block/reroute, success/rejected). Fields é propositalmente
// map[string]string para manter a serialização determinística barata.
type Event struct {
	Name   string
	Action string
	Key    string
	Method string
	Path   string
	At     time.Time
	Fields map[string]string
}

// Sink é a estratégia de gravação dos eventos de auditoria.
//
// Implementações devem ser append-only e best-effort: o chamador trata erro
// como não-fatal (nunca derruba a request por falha de auditoria).
type Sink interface {
	Log(ctx context.Context, ev Event) error
}

// Logger é o mínimo que as camadas de aplicação precisam para avisos.
type Logger interface {
	Info(msg string)
	Warn(msg string)
}

// Clock permite injetar tempo determinístico em testes.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock retorna o relógio real do sistema.
func SystemClock() Clock { return systemClock{} }

type stdLogger struct {
	prefix string
}

func (l stdLogger) Info(msg string) { log.Printf("%s%s", l.prefix, msg) }
func (l stdLogger) Warn(msg string) { log.Printf("%sWARN: %s", l.prefix, msg) }

// StdLogger adapta o log padrão para o contrato Logger.
func StdLogger(prefix string) Logger { return stdLogger{prefix: prefix} }

// NopSink descarta todos os eventos. Útil como default e em testes.
type NopSink struct{}

func (NopSink) Log(context.Context, Event) error { return nil }

// MultiSink replica cada evento para vários sinks.
// Erros são agregados de forma simplificada: retorna o primeiro.
type MultiSink []Sink

func (m MultiSink) Log(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type requestIDKey struct{}

// WithRequestID anexa um id de request ao contexto para correlação nos sinks.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extrai o id de request do contexto, se presente.
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
