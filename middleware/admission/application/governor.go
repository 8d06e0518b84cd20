package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/audit"
)

const (
	// rateWindowSpan é fixo: a janela deslizante cobre os últimos 60s.
	rateWindowSpan = time.Minute
	// retryAfterSeconds é o valor devolvido em toda rejeição por rate limit.
	retryAfterSeconds = 60

	defaultRatePerMinute = 5
	defaultCacheTTL      = 60 * time.Second
	defaultBatchWindow   = 500 * time.Millisecond
	defaultTimeout       = 8 * time.Second
)

// Scope descreve o alvo da admissão: a rota (para auditoria) e se ela é a
// rota com batching habilitado.
type Scope struct {
	Route   string
	Batched bool
}

// Governor governa o acesso ao provider: janela deslizante escalada pelo
// idle state, cache por chave exata, fila de batch com timer singleton e
// chamada direta guardada por timeout.
//
// Janela, cache e fila vivem só em memória e morrem com o processo: são
// estado de política best-effort, não fonte de verdade.
//
// Os timestamps vêm do Clock injetado; os timers (batch e timeout) usam o
// relógio real do runtime.
type Governor struct {
	provider domain.ProviderClient
	idle     domain.IdleStateProvider
	sink     audit.Sink
	logger   audit.Logger
	clock    audit.Clock
	breaker  *Breaker

	ratePerMinute int
	cacheTTL      time.Duration
	batchWindow   time.Duration
	timeout       time.Duration

	// mu serializa janela, cache e fila. No original cooperativo a atomicidade
	// vinha da ausência de suspensão entre checagem e mutação; aqui o mutex
	// cumpre esse papel. Nenhuma chamada de provider acontece com mu preso.
	mu         sync.Mutex
	window     slidingWindow
	cache      map[string]cacheEntry
	queue      []*batchItem
	flushTimer *time.Timer // singleton: no máximo um flush agendado por vez
}

type cacheEntry struct {
	resp domain.Response
	at   time.Time
}

type batchItem struct {
	key     string
	payload domain.Payload
	respond chan batchResult
}

type batchResult struct {
	resp domain.Response
	err  error
}

type GovernorOption func(*Governor)

// WithRatePerMinute define R, o limite base por minuto (padrão 5).
func WithRatePerMinute(r int) GovernorOption {
	return func(g *Governor) {
		if r > 0 {
			g.ratePerMinute = r
		}
	}
}

func WithCacheTTL(d time.Duration) GovernorOption {
	return func(g *Governor) {
		if d > 0 {
			g.cacheTTL = d
		}
	}
}

func WithBatchWindow(d time.Duration) GovernorOption {
	return func(g *Governor) {
		if d > 0 {
			g.batchWindow = d
		}
	}
}

func WithTimeout(d time.Duration) GovernorOption {
	return func(g *Governor) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithIdleProvider(p domain.IdleStateProvider) GovernorOption {
	return func(g *Governor) {
		if p != nil {
			g.idle = p
		}
	}
}

func WithSink(s audit.Sink) GovernorOption {
	return func(g *Governor) {
		if s != nil {
			g.sink = s
		}
	}
}

func WithLogger(l audit.Logger) GovernorOption {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithClock(c audit.Clock) GovernorOption {
	return func(g *Governor) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithBreaker liga o circuit breaker na frente do provider (desligado por
// padrão).
func WithBreaker(b *Breaker) GovernorOption {
	return func(g *Governor) { g.breaker = b }
}

type alwaysActive struct{}

func (alwaysActive) State() domain.IdleState       { return domain.IdleActive }
func (alwaysActive) NoteTraffic(map[string]string) {}

// NewGovernor resolve todos os defaults uma única vez na construção.
func NewGovernor(provider domain.ProviderClient, opts ...GovernorOption) *Governor {
	g := &Governor{
		provider:      provider,
		idle:          alwaysActive{},
		sink:          audit.NopSink{},
		logger:        audit.StdLogger("admission: "),
		clock:         audit.SystemClock(),
		ratePerMinute: defaultRatePerMinute,
		cacheTTL:      defaultCacheTTL,
		batchWindow:   defaultBatchWindow,
		timeout:       defaultTimeout,
		cache:         make(map[string]cacheEntry),
	}
	g.window = slidingWindow{span: rateWindowSpan}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit governa uma request com payload encaminhável.
//
// requestKey vazio é pass-through (ErrPassThrough, nenhum estado tocado).
// Caso contrário devolve exatamente UMA de: resposta cacheada, rejeição por
// rate limit, resposta em lote, resposta direta ou timeout. Nunca mais de
// uma resposta por request.
func (g *Governor) Admit(ctx context.Context, requestKey string, payload domain.Payload, scope Scope) (domain.Response, error) {
	if strings.TrimSpace(requestKey) == "" {
		return domain.Response{}, domain.ErrPassThrough
	}

	limit := g.effectiveLimit()
	now := g.clock.Now()

	g.mu.Lock()
	g.window.trim(now)
	if g.window.count() >= limit {
		g.mu.Unlock()
		// rejeição não consome janela: o timestamp só entra em admissão
		g.record(ctx, "admission_rate_limited", "rejected", requestKey, scope, map[string]string{
			"effective_limit": strconv.Itoa(limit),
			"retry_after":     strconv.Itoa(retryAfterSeconds),
		})
		return domain.Response{}, &domain.RateLimitError{RetryAfterSeconds: retryAfterSeconds}
	}
	g.window.note(now)

	// cache por chave exata, sem normalização nem fuzzy match
	if ent, ok := g.cache[requestKey]; ok && now.Sub(ent.at) < g.cacheTTL {
		g.mu.Unlock()
		g.record(ctx, "admission_cache_hit", "success", requestKey, scope, nil)
		return ent.resp, nil
	}

	if scope.Batched {
		item := &batchItem{key: requestKey, payload: payload, respond: make(chan batchResult, 1)}
		g.queue = append(g.queue, item)
		if g.flushTimer == nil {
			g.flushTimer = time.AfterFunc(g.batchWindow, g.flush)
		}
		g.mu.Unlock()
		return g.awaitBatch(ctx, item, requestKey, scope)
	}
	g.mu.Unlock()

	return g.direct(ctx, requestKey, payload, scope)
}

// effectiveLimit aplica o idle state sobre R:
// active→R, idle→max(1, R/2), critical→1.
func (g *Governor) effectiveLimit() int {
	switch g.idle.State() {
	case domain.IdleIdle:
		half := g.ratePerMinute / 2
		if half < 1 {
			half = 1
		}
		return half
	case domain.IdleCritical:
		return 1
	default:
		return g.ratePerMinute
	}
}

func (g *Governor) awaitBatch(ctx context.Context, item *batchItem, requestKey string, scope Scope) (domain.Response, error) {
	select {
	case res := <-item.respond:
		if res.err != nil {
			g.record(ctx, "admission_batch_failed", "error", requestKey, scope, map[string]string{
				"error": res.err.Error(),
			})
			return domain.Response{}, res.err
		}
		g.record(ctx, "admission_batch_success", "success", requestKey, scope, nil)
		return res.resp, nil
	case <-ctx.Done():
		// o resultado do flush cai no canal bufferizado e é descartado
		g.record(ctx, "admission_canceled", "error", requestKey, scope, nil)
		return domain.Response{}, &domain.ProviderError{Err: ctx.Err()}
	}
}

// flush drena a fila inteira de uma vez e faz UMA chamada em lote, na ordem
// de enfileiramento, distribuindo os resultados por índice posicional.
// Falha do lote rejeita todos os itens com o mesmo erro, sem retry.
func (g *Governor) flush() {
	g.mu.Lock()
	items := g.queue
	g.queue = nil
	g.flushTimer = nil
	g.mu.Unlock()

	if len(items) == 0 {
		return
	}

	payloads := make([]domain.Payload, len(items))
	for i, it := range items {
		payloads[i] = it.payload
	}

	// o flush é dirigido pelo timer, não por uma request específica
	ctx := context.Background()
	resps, err := g.callBatch(ctx, payloads)
	if err == nil && len(resps) != len(items) {
		err = fmt.Errorf("admission: provider devolveu %d respostas para %d payloads", len(resps), len(items))
	}
	if err != nil {
		perr := &domain.ProviderError{Err: err}
		for _, it := range items {
			it.respond <- batchResult{err: perr}
		}
		g.record(ctx, "admission_batch_flush_error", "error", "", Scope{}, map[string]string{
			"items": strconv.Itoa(len(items)),
			"error": err.Error(),
		})
		return
	}

	now := g.clock.Now()
	g.mu.Lock()
	for i, it := range items {
		g.cache[it.key] = cacheEntry{resp: resps[i], at: now}
	}
	// itens que chegaram depois do snapshot precisam de um novo timer:
	// o flush nunca pode travar permanentemente
	if len(g.queue) > 0 && g.flushTimer == nil {
		g.flushTimer = time.AfterFunc(g.batchWindow, g.flush)
	}
	g.mu.Unlock()

	for i, it := range items {
		it.respond <- batchResult{resp: resps[i]}
	}
	g.record(ctx, "admission_batch_flushed", "success", "", Scope{}, map[string]string{
		"items": strconv.Itoa(len(items)),
	})
}

type callResult struct {
	resp domain.Response
	err  error
}

// replyGuard é o response guard: garante no máximo UMA entrega por request,
// vença o provider ou o timer. deliver retorna false para o perdedor.
type replyGuard struct {
	once sync.Once
	ch   chan callResult
}

func newReplyGuard() *replyGuard {
	return &replyGuard{ch: make(chan callResult, 1)}
}

func (r *replyGuard) deliver(res callResult) bool {
	delivered := false
	r.once.Do(func() {
		r.ch <- res
		delivered = true
	})
	return delivered
}

func (g *Governor) direct(ctx context.Context, requestKey string, payload domain.Payload, scope Scope) (domain.Response, error) {
	reply := newReplyGuard()

	go func() {
		resp, err := g.callDirect(ctx, payload)
		if !reply.deliver(callResult{resp: resp, err: err}) {
			// perdeu para o timer: resultado atrasado é descartado,
			// nunca entregue nem cacheado
			g.logger.Warn("resultado atrasado do provider descartado após timeout")
		}
	}()

	timer := time.AfterFunc(g.timeout, func() {
		reply.deliver(callResult{err: &domain.TimeoutError{Elapsed: g.timeout}})
	})
	res := <-reply.ch
	timer.Stop()

	var tErr *domain.TimeoutError
	if errors.As(res.err, &tErr) {
		g.record(ctx, "admission_timeout", "error", requestKey, scope, map[string]string{
			"timeout": g.timeout.String(),
		})
		return domain.Response{}, res.err
	}
	if res.err != nil {
		g.record(ctx, "admission_provider_error", "error", requestKey, scope, map[string]string{
			"error": res.err.Error(),
		})
		return domain.Response{}, &domain.ProviderError{Err: res.err}
	}

	g.mu.Lock()
	g.cache[requestKey] = cacheEntry{resp: res.resp, at: g.clock.Now()}
	g.mu.Unlock()

	g.record(ctx, "admission_success", "success", requestKey, scope, nil)
	return res.resp, nil
}

func (g *Governor) callDirect(ctx context.Context, p domain.Payload) (domain.Response, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return domain.Response{}, err
		}
	}
	resp, err := g.provider.Call(ctx, p)
	if g.breaker != nil {
		g.breaker.Record(err)
	}
	return resp, err
}

func (g *Governor) callBatch(ctx context.Context, ps []domain.Payload) ([]domain.Response, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return nil, err
		}
	}
	resps, err := g.provider.Batch(ctx, ps)
	if g.breaker != nil {
		g.breaker.Record(err)
	}
	return resps, err
}

func (g *Governor) record(ctx context.Context, name, action, key string, scope Scope, fields map[string]string) {
	if fields == nil {
		fields = map[string]string{}
	}
	if id := audit.RequestIDFrom(ctx); id != "" {
		fields["request_id"] = id
	}
	_ = g.sink.Log(ctx, audit.Event{
		Name:   name,
		Action: action,
		Key:    key,
		Path:   scope.Route,
		At:     g.clock.Now(),
		Fields: fields,
	})
}
