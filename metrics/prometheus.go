package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goliatone/go-directive"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "directive"

// Prometheus exports lifecycle transitions.
//
// Metrics:
//   - directive_transitions_total{namespace,name,state} - directives entering a state
//   - directive_queue_depth{stage} - items waiting in a pipeline stage
type Prometheus struct {
	Transitions *prometheus.CounterVec
	QueueDepth  *prometheus.GaugeVec
}

// NewPrometheus registers the collectors on reg. A nil reg uses the default
// registerer.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Prometheus{
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of directives entering each lifecycle state",
			},
			[]string{"namespace", "name", "state"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Directives waiting in each pipeline stage",
			},
			[]string{"stage"},
		),
	}
}

func (p *Prometheus) RecordState(t directive.NamespaceAndName, s directive.State) {
	p.Transitions.WithLabelValues(t.Namespace, t.Name, s.String()).Inc()
}

func (p *Prometheus) RecordQueueDepth(stage string, depth int) {
	p.QueueDepth.WithLabelValues(stage).Set(float64(depth))
}
