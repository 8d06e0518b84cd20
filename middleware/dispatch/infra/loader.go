package infra

import (
	"fmt"
	"os"
	"strings"

	"admission-gateway/middleware/dispatch/domain"

	"gopkg.in/yaml.v3"
)

// bindingFile é o formato YAML do conjunto de bindings.
//
// Exemplo:
//
//	bindings:
//	  - id: chat
//	    priority: 120
//	    methods: [POST]
//	    exact_paths: [/api/chat]
//	    sensitivity: sensitive
//	    policy: strict_block
//	    expected_route: /api/chat
//	  - id: catch-all
//	    priority: 0
//	    methods: [GET, POST, PUT, PATCH, DELETE]
//	    path_regexes: ['.*']
//	    policy: refresh_then_reroute
//	exempt_routes:
//	  - method: GET
//	    path: /healthz
type bindingFile struct {
	Bindings []bindingYAML `yaml:"bindings"`
	Exempts  []exemptYAML  `yaml:"exempt_routes"`
}

type bindingYAML struct {
	ID            string   `yaml:"id"`
	Priority      int      `yaml:"priority"`
	Methods       []string `yaml:"methods"`
	ExactPaths    []string `yaml:"exact_paths"`
	PathRegexes   []string `yaml:"path_regexes"`
	PathTemplates []string `yaml:"path_templates"`
	IntentHints   []string `yaml:"intent_hints"`
	Sensitivity   string   `yaml:"sensitivity"`
	Policy        string   `yaml:"policy"`
	RerouteTarget string   `yaml:"reroute_target"`
	ExpectedRoute string   `yaml:"expected_route"`
}

type exemptYAML struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// LoadFile lê e valida um arquivo de bindings.
func LoadFile(path string) ([]domain.Binding, []domain.ExemptRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: lendo %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica o YAML e converte para os tipos de domínio.
func Parse(data []byte) ([]domain.Binding, []domain.ExemptRoute, error) {
	var f bindingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("dispatch: yaml inválido: %w", err)
	}
	if len(f.Bindings) == 0 {
		return nil, nil, fmt.Errorf("dispatch: arquivo sem bindings")
	}

	bindings := make([]domain.Binding, 0, len(f.Bindings))
	for _, by := range f.Bindings {
		b, err := by.toDomain()
		if err != nil {
			return nil, nil, err
		}
		bindings = append(bindings, b)
	}

	exempts := make([]domain.ExemptRoute, 0, len(f.Exempts))
	for _, ey := range f.Exempts {
		if ey.Method == "" || ey.Path == "" {
			return nil, nil, fmt.Errorf("dispatch: exempt_route precisa de method e path")
		}
		exempts = append(exempts, domain.ExemptRoute{
			Method: strings.ToUpper(ey.Method),
			Path:   ey.Path,
		})
	}
	return bindings, exempts, nil
}

func (by bindingYAML) toDomain() (domain.Binding, error) {
	var policy domain.Policy
	switch strings.ToLower(strings.TrimSpace(by.Policy)) {
	case "strict_block":
		if by.RerouteTarget != "" {
			// o invariante é irrepresentável nos tipos; aqui é a borda que o valida
			return domain.Binding{}, fmt.Errorf("dispatch: binding %q é strict_block e não pode ter reroute_target", by.ID)
		}
		policy = domain.StrictBlock()
	case "refresh_then_reroute":
		policy = domain.RerouteTo(by.RerouteTarget)
	default:
		return domain.Binding{}, fmt.Errorf("dispatch: binding %q com policy desconhecida %q", by.ID, by.Policy)
	}

	sens := domain.SensitivityNonSensitive
	switch strings.ToLower(strings.TrimSpace(by.Sensitivity)) {
	case "", "non-sensitive":
	case "sensitive":
		sens = domain.SensitivitySensitive
	default:
		return domain.Binding{}, fmt.Errorf("dispatch: binding %q com sensitivity desconhecida %q", by.ID, by.Sensitivity)
	}

	methods := make([]string, 0, len(by.Methods))
	for _, m := range by.Methods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
	}

	return domain.Binding{
		ID:            by.ID,
		Priority:      by.Priority,
		Methods:       methods,
		ExactPaths:    by.ExactPaths,
		PathRegexes:   by.PathRegexes,
		PathTemplates: by.PathTemplates,
		IntentHints:   by.IntentHints,
		Sensitivity:   sens,
		Policy:        policy,
		ExpectedRoute: by.ExpectedRoute,
	}, nil
}
