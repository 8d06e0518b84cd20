package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/audit"
	"admission-gateway/middleware/dispatch/domain"
)

// Dispatcher classifica uma request como isenta, única, ou conflito
// (block/reroute). Não tem efeito colateral além da auditoria; nunca falha:
// sempre devolve uma Decision.
type Dispatcher struct {
	registry *Registry
	sink     audit.Sink
	clock    audit.Clock
}

type DispatcherOption func(*Dispatcher)

func WithSink(s audit.Sink) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sink = s
		}
	}
}

func WithClock(c audit.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// NewDispatcher resolve os defaults uma única vez; nenhum método faz fallback
// condicional depois disso.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sink:     audit.NopSink{},
		clock:    audit.SystemClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch aplica o algoritmo de resolução:
//
//  1. rota isenta → allow imediato, sem binding;
//  2. zero candidatos → catch-all do registry;
//  3. um candidato → allow com o id dele;
//  4. vários → conflito: governa o de maior prioridade (empate: menor id,
//     regra documentada, nunca ordem de iteração), e a política DELE decide
//     block ou reroute. No reroute, a versão dos bindings é recomputada antes
//     para expor drift de configuração.
//
// hints são repassados só para auditoria; não participam do matching.
func (d *Dispatcher) Dispatch(ctx context.Context, method, path string, hints []string) domain.Decision {
	now := d.clock.Now()

	for _, e := range d.registry.Exempts() {
		if e.Matches(method, path) {
			dec := domain.Decision{Action: domain.ActionAllow}
			d.record(ctx, dec, method, path, now, hints, "")
			return dec
		}
	}

	// o catch-all não compete: só entra quando nenhum outro binding casa
	ca := d.registry.CatchAll()

	var candidates []*domain.CompiledBinding
	for _, cb := range d.registry.Bindings() {
		if cb == ca {
			continue
		}
		if cb.Matches(method, path) {
			candidates = append(candidates, cb)
		}
	}

	if len(candidates) == 0 {
		dec := domain.Decision{
			Action:           domain.ActionAllow,
			MatchedBindingID: ca.ID,
			CandidateIDs:     []string{ca.ID},
		}
		d.record(ctx, dec, method, path, now, hints, "")
		return dec
	}

	ids := make([]string, len(candidates))
	for i, cb := range candidates {
		ids[i] = cb.ID
	}

	if len(candidates) == 1 {
		dec := domain.Decision{
			Action:           domain.ActionAllow,
			MatchedBindingID: candidates[0].ID,
			CandidateIDs:     ids,
		}
		d.record(ctx, dec, method, path, now, hints, "")
		return dec
	}

	governing := governingBinding(candidates)

	if governing.Policy.IsStrictBlock() {
		dec := domain.Decision{
			Action:           domain.ActionBlock,
			MatchedBindingID: governing.ID,
			Conflicted:       true,
			ExpectedRoute:    governing.ExpectedRoute,
			CandidateIDs:     ids,
		}
		d.record(ctx, dec, method, path, now, hints, "")
		return dec
	}

	// recomputa a versão antes de rotear contra a configuração atual
	version := d.registry.Version()

	target, _ := governing.Policy.RerouteTarget()
	if target == "" {
		target = path
	}
	dec := domain.Decision{
		Action:           domain.ActionReroute,
		MatchedBindingID: governing.ID,
		Conflicted:       true,
		RerouteTarget:    target,
		CandidateIDs:     ids,
	}
	d.record(ctx, dec, method, path, now, hints, version)
	return dec
}

// governingBinding escolhe o candidato de maior prioridade; empate resolve
// pelo id lexicograficamente menor.
func governingBinding(candidates []*domain.CompiledBinding) *domain.CompiledBinding {
	best := candidates[0]
	for _, cb := range candidates[1:] {
		if cb.Priority > best.Priority ||
			(cb.Priority == best.Priority && cb.ID < best.ID) {
			best = cb
		}
	}
	return best
}

func (d *Dispatcher) record(ctx context.Context, dec domain.Decision, method, path string, at time.Time, hints []string, version string) {
	fields := map[string]string{
		"conflicted": strconv.FormatBool(dec.Conflicted),
		"candidates": strings.Join(dec.CandidateIDs, ","),
	}
	if len(hints) > 0 {
		fields["intent_hints"] = strings.Join(hints, ",")
	}
	if dec.RerouteTarget != "" {
		fields["reroute_target"] = dec.RerouteTarget
	}
	if version != "" {
		fields["bindings_version"] = version
	}
	if id := audit.RequestIDFrom(ctx); id != "" {
		fields["request_id"] = id
	}
	_ = d.sink.Log(ctx, audit.Event{
		Name:   "dispatch_decision",
		Action: string(dec.Action),
		Key:    dec.MatchedBindingID,
		Method: method,
		Path:   path,
		At:     at,
		Fields: fields,
	})
}
