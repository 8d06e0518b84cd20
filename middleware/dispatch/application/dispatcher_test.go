package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/audit"
	"admission-gateway/middleware/dispatch/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Log(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

func mustRegistry(t *testing.T, bindings []domain.Binding, exempts []domain.ExemptRoute) *Registry {
	t.Helper()
	r, err := NewRegistry(append(bindings, catchAllBinding()), exempts)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestDispatch_ExemptRouteShortCircuits(t *testing.T) {
	reg := mustRegistry(t, []domain.Binding{
		// binding que casaria /healthz se a isenção não curto-circuitasse
		{ID: "blocker", Priority: 99, Methods: []string{"GET"}, PathRegexes: []string{"^/health.*"}, Policy: domain.StrictBlock()},
	}, []domain.ExemptRoute{{Method: "GET", Path: "/healthz"}})

	d := NewDispatcher(reg)
	dec := d.Dispatch(context.Background(), "GET", "/healthz", nil)

	if dec.Action != domain.ActionAllow {
		t.Fatalf("expected allow, got %s", dec.Action)
	}
	if dec.MatchedBindingID != "" {
		t.Fatalf("exempt decision must not carry a binding id, got %q", dec.MatchedBindingID)
	}
	if dec.Conflicted {
		t.Fatalf("exempt decision must not be conflicted")
	}
}

func TestDispatch_SingleMatchAllows(t *testing.T) {
	reg := mustRegistry(t, []domain.Binding{
		{ID: "users", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/users"}, Policy: domain.StrictBlock()},
	}, nil)

	d := NewDispatcher(reg)
	dec := d.Dispatch(context.Background(), "GET", "/users", nil)

	if dec.Action != domain.ActionAllow || dec.Conflicted {
		t.Fatalf("expected non-conflicted allow, got %+v", dec)
	}
	if dec.MatchedBindingID != "users" {
		t.Fatalf("expected binding users, got %q", dec.MatchedBindingID)
	}
}

func TestDispatch_NoMatchFallsToCatchAll(t *testing.T) {
	reg := mustRegistry(t, []domain.Binding{
		{ID: "users", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/users"}, Policy: domain.StrictBlock()},
	}, nil)

	d := NewDispatcher(reg)
	dec := d.Dispatch(context.Background(), "DELETE", "/nowhere", nil)

	if dec.Action != domain.ActionAllow {
		t.Fatalf("expected allow, got %s", dec.Action)
	}
	if dec.MatchedBindingID != "catch-all" {
		t.Fatalf("expected catch-all, got %q", dec.MatchedBindingID)
	}
}

func TestDispatch_ConflictStrictBlockGoverns(t *testing.T) {
	// cenário: A (prioridade 10, strict_block) vs B (prioridade 5, reroute)
	reg := mustRegistry(t, []domain.Binding{
		{ID: "A", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.StrictBlock()},
		{ID: "B", Priority: 5, Methods: []string{"GET"}, PathRegexes: []string{"^/x$"}, Policy: domain.RerouteTo("/y")},
	}, nil)

	d := NewDispatcher(reg)
	dec := d.Dispatch(context.Background(), "GET", "/x", nil)

	if dec.Action != domain.ActionBlock {
		t.Fatalf("expected block, got %s", dec.Action)
	}
	if dec.MatchedBindingID != "A" {
		t.Fatalf("expected governing binding A, got %q", dec.MatchedBindingID)
	}
	if !dec.Conflicted {
		t.Fatalf("expected conflicted decision")
	}
}

func TestDispatch_HighestPriorityGovernsRegardlessOfOrder(t *testing.T) {
	mk := func(first, second domain.Binding) domain.Decision {
		reg := mustRegistry(t, []domain.Binding{first, second}, nil)
		return NewDispatcher(reg).Dispatch(context.Background(), "GET", "/x", nil)
	}

	hi := domain.Binding{ID: "hi", Priority: 120, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.StrictBlock()}
	lo := domain.Binding{ID: "lo", Priority: 1, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.RerouteTo("/y")}

	d1 := mk(hi, lo)
	d2 := mk(lo, hi)
	if d1.MatchedBindingID != "hi" || d2.MatchedBindingID != "hi" {
		t.Fatalf("expected priority 120 to govern in both orders, got %q / %q", d1.MatchedBindingID, d2.MatchedBindingID)
	}
}

func TestDispatch_ConflictRerouteUsesTargetAndVersion(t *testing.T) {
	sink := &recordingSink{}
	reg := mustRegistry(t, []domain.Binding{
		{ID: "A", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.RerouteTo("/y")},
		{ID: "B", Priority: 5, Methods: []string{"GET"}, PathRegexes: []string{"^/x$"}, Policy: domain.StrictBlock()},
	}, nil)

	d := NewDispatcher(reg, WithSink(sink))
	dec := d.Dispatch(context.Background(), "GET", "/x", nil)

	if dec.Action != domain.ActionReroute {
		t.Fatalf("expected reroute, got %s", dec.Action)
	}
	if dec.RerouteTarget != "/y" {
		t.Fatalf("expected target /y, got %q", dec.RerouteTarget)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Fields["bindings_version"] == "" {
		t.Fatalf("reroute decision must record the recomputed bindings version")
	}
}

func TestDispatch_RerouteWithoutTargetFallsBackToPath(t *testing.T) {
	reg := mustRegistry(t, []domain.Binding{
		{ID: "A", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.RerouteTo("")},
		{ID: "B", Priority: 5, Methods: []string{"GET"}, PathRegexes: []string{"^/x$"}, Policy: domain.StrictBlock()},
	}, nil)

	dec := NewDispatcher(reg).Dispatch(context.Background(), "GET", "/x", nil)
	if dec.RerouteTarget != "/x" {
		t.Fatalf("expected fallback to request path, got %q", dec.RerouteTarget)
	}
}

func TestDispatch_EqualPriorityTieBreaksByLowerID(t *testing.T) {
	reg := mustRegistry(t, []domain.Binding{
		{ID: "bbb", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.RerouteTo("/b")},
		{ID: "aaa", Priority: 10, Methods: []string{"GET"}, PathRegexes: []string{"^/x$"}, Policy: domain.StrictBlock()},
	}, nil)

	dec := NewDispatcher(reg).Dispatch(context.Background(), "GET", "/x", nil)
	if dec.MatchedBindingID != "aaa" {
		t.Fatalf("expected lexicographically lower id to govern, got %q", dec.MatchedBindingID)
	}
	if dec.Action != domain.ActionBlock {
		t.Fatalf("expected governing policy (strict_block) to decide, got %s", dec.Action)
	}
}

func TestDispatch_AuditRecordsCandidatesAndTimestamp(t *testing.T) {
	sink := &recordingSink{}
	clock := &fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := mustRegistry(t, []domain.Binding{
		{ID: "A", Priority: 10, Methods: []string{"GET"}, ExactPaths: []string{"/x"}, Policy: domain.StrictBlock()},
		{ID: "B", Priority: 5, Methods: []string{"GET"}, PathRegexes: []string{"^/x$"}, Policy: domain.RerouteTo("/y")},
	}, nil)

	NewDispatcher(reg, WithSink(sink), WithClock(clock)).Dispatch(context.Background(), "GET", "/x", []string{"intent"})

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != "dispatch_decision" || ev.Action != "block" {
		t.Fatalf("unexpected event %q/%q", ev.Name, ev.Action)
	}
	if ev.Fields["candidates"] != "A,B" {
		t.Fatalf("expected candidates A,B, got %q", ev.Fields["candidates"])
	}
	if ev.Fields["conflicted"] != "true" {
		t.Fatalf("expected conflicted=true")
	}
	if !ev.At.Equal(clock.at) {
		t.Fatalf("expected injected clock timestamp")
	}
}

type fixedClock struct {
	at time.Time
}

func (c *fixedClock) Now() time.Time { return c.at }
