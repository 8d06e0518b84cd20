package admission

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

// maxPayloadBytes limita a leitura do corpo na extração do prompt.
const maxPayloadBytes = 1 << 20

type Options struct {
	Governor *application.Governor

	// Idle recebe NoteTraffic a cada request com payload, se definido.
	Idle domain.IdleStateProvider

	// PromptHeader é o fallback de extração quando o corpo não é JSON com
	// campo "prompt" (padrão "X-Prompt-Key").
	PromptHeader string

	// BatchPaths lista os paths com batching habilitado.
	BatchPaths []string
}

// Middleware intercepta requests com payload encaminhável e as governa.
// Requests sem payload passam direto para next (o pass-through do governor).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.PromptHeader == "" {
		opts.PromptHeader = "X-Prompt-Key"
	}
	batched := make(map[string]bool, len(opts.BatchPaths))
	for _, p := range opts.BatchPaths {
		batched[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, meta := extractPrompt(r, opts.PromptHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if opts.Idle != nil {
				opts.Idle.NoteTraffic(map[string]string{"path": r.URL.Path})
			}

			scope := application.Scope{
				Route:   r.URL.Path,
				Batched: batched[r.URL.Path],
			}
			resp, err := opts.Governor.Admit(r.Context(), key, domain.Payload{Prompt: key, Meta: meta}, scope)
			if err != nil {
				writeError(w, err)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(struct {
				Content string            `json:"content"`
				Meta    map[string]string `json:"meta,omitempty"`
			}{Content: resp.Content, Meta: resp.Meta})
		})
	}
}

// extractPrompt tenta o campo "prompt" de um corpo JSON e cai para o header.
// O corpo é restaurado para o próximo handler no caso de pass-through.
func extractPrompt(r *http.Request, header string) (string, map[string]string) {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v, nil
	}

	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "", nil
	}

	var parsed struct {
		Prompt string            `json:"prompt"`
		Meta   map[string]string `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil
	}
	return strings.TrimSpace(parsed.Prompt), parsed.Meta
}

func writeError(w http.ResponseWriter, err error) {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	var timeoutErr *domain.TimeoutError
	if errors.As(err, &timeoutErr) {
		http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
		return
	}

	if errors.Is(err, domain.ErrPassThrough) {
		// não deveria chegar aqui (key vazia nem chama Admit); tratado como allow
		http.Error(w, http.StatusText(http.StatusNoContent), http.StatusNoContent)
		return
	}

	// ProviderError, breaker aberto, cancelamento: falha de upstream
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}
