package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sensitivity é metadado informativo do binding; não participa da resolução
// de conflito.
type Sensitivity string

const (
	SensitivitySensitive    Sensitivity = "sensitive"
	SensitivityNonSensitive Sensitivity = "non-sensitive"
)

type policyKind int

const (
	policyStrictBlock policyKind = iota
	policyReroute
)

// Policy é a política de conflito como variante fechada: StrictBlock ou
// RerouteTo(target). Um binding strict_block não tem como carregar um alvo de
// reroute: o invariante vira tipo, não checagem em runtime.
type Policy struct {
	kind   policyKind
	target string
}

// StrictBlock bloqueia a request quando este binding governa um conflito.
func StrictBlock() Policy { return Policy{kind: policyStrictBlock} }

// RerouteTo revalida a configuração e redireciona para target quando este
// binding governa um conflito. target vazio significa "a própria rota da
// request" (resolvido no momento do dispatch).
func RerouteTo(target string) Policy { return Policy{kind: policyReroute, target: target} }

func (p Policy) IsStrictBlock() bool { return p.kind == policyStrictBlock }

// RerouteTarget retorna o alvo configurado e se a política é de reroute.
func (p Policy) RerouteTarget() (string, bool) {
	if p.kind != policyReroute {
		return "", false
	}
	return p.target, true
}

func (p Policy) String() string {
	if p.kind == policyStrictBlock {
		return "strict_block"
	}
	return "refresh_then_reroute"
}

// Binding é uma regra de roteamento imutável: métodos + matchers de path,
// prioridade para desempate e política de conflito.
//
// Uma request casa com o binding se o método estiver em Methods E pelo menos
// um matcher (exato, regex ou template) casar com o path.
type Binding struct {
	ID            string
	Priority      int
	Methods       []string
	ExactPaths    []string
	PathRegexes   []string
	PathTemplates []string
	IntentHints   []string
	Sensitivity   Sensitivity
	Policy        Policy
	ExpectedRoute string
}

// CompiledBinding é um Binding com os regexes pré-compilados.
// Produzido uma vez na carga do registry; imutável depois disso.
type CompiledBinding struct {
	Binding
	regexes []*regexp.Regexp
}

var ErrEmptyBindingID = errors.New("dispatch: binding sem id")

// Compile valida o binding e pré-compila os regexes.
func (b Binding) Compile() (*CompiledBinding, error) {
	if strings.TrimSpace(b.ID) == "" {
		return nil, ErrEmptyBindingID
	}
	if len(b.Methods) == 0 {
		return nil, fmt.Errorf("dispatch: binding %q sem métodos", b.ID)
	}
	if len(b.ExactPaths)+len(b.PathRegexes)+len(b.PathTemplates) == 0 {
		return nil, fmt.Errorf("dispatch: binding %q sem matchers", b.ID)
	}

	cb := &CompiledBinding{Binding: b}
	for _, pat := range b.PathRegexes {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("dispatch: binding %q regex inválido %q: %w", b.ID, pat, err)
		}
		cb.regexes = append(cb.regexes, re)
	}
	return cb, nil
}

// Matches decide se o binding casa com (method, path).
func (cb *CompiledBinding) Matches(method, path string) bool {
	if !cb.hasMethod(method) {
		return false
	}
	for _, p := range cb.ExactPaths {
		if p == path {
			return true
		}
	}
	for _, re := range cb.regexes {
		if re.MatchString(path) {
			return true
		}
	}
	for _, tpl := range cb.PathTemplates {
		if templateMatches(tpl, path) {
			return true
		}
	}
	return false
}

func (cb *CompiledBinding) hasMethod(method string) bool {
	for _, m := range cb.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// templateMatches casa templates do tipo "/users/:id/profile": segmentos
// literais comparam por igualdade, segmentos ":nome" casam qualquer valor
// não-vazio.
func templateMatches(tpl, path string) bool {
	tSegs := strings.Split(strings.Trim(tpl, "/"), "/")
	pSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(tSegs) != len(pSegs) {
		return false
	}
	for i, ts := range tSegs {
		if strings.HasPrefix(ts, ":") {
			if pSegs[i] == "" {
				return false
			}
			continue
		}
		if ts != pSegs[i] {
			return false
		}
	}
	return true
}

// ExemptRoute é um par (método, path exato ou prefixo) que pula por completo a
// avaliação de conflito.
type ExemptRoute struct {
	Method string
	Path   string
}

// Matches aceita match exato ou por prefixo do path configurado.
func (e ExemptRoute) Matches(method, path string) bool {
	if !strings.EqualFold(e.Method, method) {
		return false
	}
	return path == e.Path || strings.HasPrefix(path, e.Path)
}
