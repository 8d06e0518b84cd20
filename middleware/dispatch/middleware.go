package dispatch

import (
	"net/http"
	"strings"

	"admission-gateway/middleware/audit"
	"admission-gateway/middleware/dispatch/application"
	"admission-gateway/middleware/dispatch/domain"

	"github.com/google/uuid"
)

type Options struct {
	Dispatcher *application.Dispatcher

	// BlockStatus é o status devolvido em conflito bloqueado (padrão 403).
	BlockStatus int
	// RerouteStatus é o status do redirect consultivo (padrão 307).
	RerouteStatus int

	// HintHeader, se definido, extrai intent hints da request (separados por
	// vírgula) só para auditoria.
	HintHeader string

	// RequestID gera o id estampado em X-Request-ID e propagado para a
	// auditoria. Padrão: uuid v4.
	RequestID func() string

	AddDecisionHeaders bool
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.BlockStatus == 0 {
		opts.BlockStatus = http.StatusForbidden
	}
	if opts.RerouteStatus == 0 {
		opts.RerouteStatus = http.StatusTemporaryRedirect
	}
	if opts.RequestID == nil {
		opts.RequestID = uuid.NewString
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := opts.RequestID()
			w.Header().Set("X-Request-ID", reqID)
			ctx := audit.WithRequestID(r.Context(), reqID)

			var hints []string
			if opts.HintHeader != "" {
				if v := r.Header.Get(opts.HintHeader); v != "" {
					hints = splitHints(v)
				}
			}

			dec := opts.Dispatcher.Dispatch(ctx, r.Method, r.URL.Path, hints)

			if opts.AddDecisionHeaders {
				w.Header().Set("X-Dispatch-Action", string(dec.Action))
				if dec.MatchedBindingID != "" {
					w.Header().Set("X-Dispatch-Binding", dec.MatchedBindingID)
				}
			}

			switch dec.Action {
			case domain.ActionBlock:
				w.Header().Set("X-Dispatch-Binding", dec.MatchedBindingID)
				http.Error(w, dec.BlockError().Error(), opts.BlockStatus)
				return
			case domain.ActionReroute:
				http.Redirect(w, r, dec.RerouteTarget, opts.RerouteStatus)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitHints(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if h := strings.TrimSpace(part); h != "" {
			out = append(out, h)
		}
	}
	return out
}
