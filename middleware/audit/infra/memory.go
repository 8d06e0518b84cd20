package infra

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/audit"
)

// ChainedEvent é um evento gravado com o hash encadeado ao anterior.
type ChainedEvent struct {
	Event    audit.Event
	Hash     string
	PrevHash string
}

// MemorySink guarda a trilha de auditoria em memória, encadeando cada evento
// ao anterior via SHA-256. Serve para testes, desenvolvimento e para
// verificação de integridade (VerifyChain).
//
// Não faz expiração; use WithMaxEntries para limitar o crescimento.
type MemorySink struct {
	mu       sync.Mutex
	entries  []ChainedEvent
	prevHash string

	maxEntries int
}

type MemorySinkOption func(*MemorySink)

// WithMaxEntries limita o número de eventos retidos (0 = sem limite).
// Ao estourar o limite, os mais antigos são descartados; a verificação da
// cadeia passa a valer apenas a partir do primeiro retido.
func WithMaxEntries(n int) MemorySinkOption {
	return func(s *MemorySink) { s.maxEntries = n }
}

func NewMemorySink(opts ...MemorySinkOption) *MemorySink {
	s := &MemorySink{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// canonical serializa o evento de forma determinística: campos fixos em ordem
// fixa e Fields ordenado por chave. Mudar esta função invalida cadeias antigas.
func canonical(ev audit.Event) string {
	var b strings.Builder
	b.WriteString(ev.Name)
	b.WriteByte('\n')
	b.WriteString(ev.Action)
	b.WriteByte('\n')
	b.WriteString(ev.Key)
	b.WriteByte('\n')
	b.WriteString(ev.Method)
	b.WriteByte('\n')
	b.WriteString(ev.Path)
	b.WriteByte('\n')
	b.WriteString(ev.At.UTC().Format(time.RFC3339Nano))
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ev.Fields[k])
	}
	return b.String()
}

func chainHash(prev string, ev audit.Event) string {
	sum := sha256.Sum256([]byte(prev + canonical(ev)))
	return hex.EncodeToString(sum[:])
}

func (s *MemorySink) Log(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := chainHash(s.prevHash, ev)
	s.entries = append(s.entries, ChainedEvent{Event: ev, Hash: h, PrevHash: s.prevHash})
	s.prevHash = h

	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		drop := len(s.entries) - s.maxEntries
		s.entries = append([]ChainedEvent(nil), s.entries[drop:]...)
	}
	return nil
}

// Entries devolve uma cópia da trilha atual.
func (s *MemorySink) Entries() []ChainedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChainedEvent, len(s.entries))
	copy(out, s.entries)
	return out
}

// VerifyChain recomputa os hashes e retorna false se algum elo não bate
// (evento alterado ou cadeia remontada).
func (s *MemorySink) VerifyChain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if i > 0 && e.PrevHash != s.entries[i-1].Hash {
			return false
		}
		if chainHash(e.PrevHash, e.Event) != e.Hash {
			return false
		}
	}
	return true
}
