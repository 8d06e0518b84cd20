package application

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"admission-gateway/middleware/dispatch/domain"

	"github.com/cespare/xxhash/v2"
)

// probeVerbs são os verbos usados para verificar que existe um binding
// catch-all na carga do registry.
var probeVerbs = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// probePath é um path improvável de ser coberto por qualquer matcher que não
// seja o catch-all.
const probePath = "/__catchall_probe__/7f3a1c"

var ErrNoCatchAll = errors.New("dispatch: registry sem binding catch-all")

// Registry guarda o conjunto de bindings e rotas isentas carregado no boot.
//
// O conjunto é imutável; Reload troca o snapshot inteiro de forma atômica e
// invalida o hash de versão memoizado.
type Registry struct {
	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	bindings []*domain.CompiledBinding
	exempts  []domain.ExemptRoute
	catchAll *domain.CompiledBinding
	version  string // memoizado; vazio até a primeira consulta
}

func NewRegistry(bindings []domain.Binding, exempts []domain.ExemptRoute) (*Registry, error) {
	snap, err := buildSnapshot(bindings, exempts)
	if err != nil {
		return nil, err
	}
	return &Registry{snap: snap}, nil
}

func buildSnapshot(bindings []domain.Binding, exempts []domain.ExemptRoute) (*snapshot, error) {
	seen := make(map[string]bool, len(bindings))
	compiled := make([]*domain.CompiledBinding, 0, len(bindings))
	for _, b := range bindings {
		if seen[b.ID] {
			return nil, fmt.Errorf("dispatch: binding id duplicado %q", b.ID)
		}
		seen[b.ID] = true

		cb, err := b.Compile()
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cb)
	}

	// Ordem estável por id: o resultado do dispatch nunca pode depender da
	// ordem de declaração.
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].ID < compiled[j].ID })

	catchAll := findCatchAll(compiled)
	if catchAll == nil {
		return nil, ErrNoCatchAll
	}

	ex := make([]domain.ExemptRoute, len(exempts))
	copy(ex, exempts)

	return &snapshot{bindings: compiled, exempts: ex, catchAll: catchAll}, nil
}

// findCatchAll procura o binding de menor prioridade que casa o path de probe
// em todos os verbos padrão. Empate de prioridade resolve pelo menor id.
func findCatchAll(bindings []*domain.CompiledBinding) *domain.CompiledBinding {
	var best *domain.CompiledBinding
	for _, cb := range bindings {
		ok := true
		for _, verb := range probeVerbs {
			if !cb.Matches(verb, probePath) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if best == nil || cb.Priority < best.Priority ||
			(cb.Priority == best.Priority && cb.ID < best.ID) {
			best = cb
		}
	}
	return best
}

// Reload substitui o conjunto inteiro atomicamente. Em caso de erro, o
// snapshot anterior permanece intacto.
func (r *Registry) Reload(bindings []domain.Binding, exempts []domain.ExemptRoute) error {
	snap, err := buildSnapshot(bindings, exempts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return nil
}

func (r *Registry) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Bindings devolve o snapshot atual (compartilhado, somente leitura).
func (r *Registry) Bindings() []*domain.CompiledBinding { return r.current().bindings }

// Exempts devolve as rotas isentas do snapshot atual.
func (r *Registry) Exempts() []domain.ExemptRoute { return r.current().exempts }

// CatchAll devolve o binding catch-all do snapshot atual.
func (r *Registry) CatchAll() *domain.CompiledBinding { return r.current().catchAll }

// Version devolve o hash de conteúdo do conjunto atual em hexa.
//
// O hash é estável sob reordenação de qualquer array interno dos bindings:
// cada array é ordenado isoladamente antes de entrar no digest, e os próprios
// bindings entram ordenados por id. Memoizado até o próximo Reload;
// recomputar é O(bindings).
func (r *Registry) Version() string {
	r.mu.RLock()
	v := r.snap.version
	r.mu.RUnlock()
	if v != "" {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.version == "" {
		r.snap.version = hashSnapshot(r.snap)
	}
	return r.snap.version
}

func hashSnapshot(s *snapshot) string {
	d := xxhash.New()
	for _, cb := range s.bindings { // já ordenados por id
		writeField(d, cb.ID)
		writeField(d, strconv.Itoa(cb.Priority))
		writeSorted(d, cb.Methods)
		writeSorted(d, cb.ExactPaths)
		writeSorted(d, cb.PathRegexes)
		writeSorted(d, cb.PathTemplates)
		writeSorted(d, cb.IntentHints)
		writeField(d, string(cb.Sensitivity))
		writeField(d, cb.Policy.String())
		if target, ok := cb.Policy.RerouteTarget(); ok {
			writeField(d, target)
		}
		writeField(d, cb.ExpectedRoute)
	}

	exempts := make([]string, 0, len(s.exempts))
	for _, e := range s.exempts {
		exempts = append(exempts, e.Method+" "+e.Path)
	}
	writeSorted(d, exempts)

	return fmt.Sprintf("%016x", d.Sum64())
}

func writeField(d *xxhash.Digest, v string) {
	_, _ = d.WriteString(v)
	_, _ = d.WriteString("\x1f")
}

func writeSorted(d *xxhash.Digest, vs []string) {
	sorted := make([]string, len(vs))
	copy(sorted, vs)
	sort.Strings(sorted)
	for _, v := range sorted {
		writeField(d, v)
	}
	_, _ = d.WriteString("\x1e")
}
