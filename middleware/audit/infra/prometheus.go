package infra

import (
	"context"

	"admission-gateway/middleware/audit"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exporta os eventos de auditoria como contadores Prometheus,
// rotulados por evento e ação. Não guarda os eventos em si.
type PromSink struct {
	events *prometheus.CounterVec
}

// NewPromSink registra os coletores em reg (nil = registry padrão).
func NewPromSink(reg prometheus.Registerer) *PromSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_audit_events_total",
				Help: "Total de eventos de auditoria por evento e ação",
			},
			[]string{"event", "action"},
		),
	}
	reg.MustRegister(s.events)
	return s
}

func (s *PromSink) Log(_ context.Context, ev audit.Event) error {
	s.events.WithLabelValues(ev.Name, ev.Action).Inc()
	return nil
}
