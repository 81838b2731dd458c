package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the breaker collectors. A nil *Metrics records nothing.
type Metrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
	Opened      *prometheus.CounterVec
}

// NewMetrics registers the breaker collectors with reg. Registering twice on
// the same registry reuses the first set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_breaker_state",
			Help: "Breaker state per API target: 0=closed, 1=open, 2=half-open.",
		}, []string{"target"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_breaker_transition_total",
			Help: "Breaker state transitions.",
		}, []string{"target", "from", "to"}),
		Opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_breaker_open_total",
			Help: "Times a breaker opened.",
		}, []string{"target"}),
	}
	if reg == nil {
		return m
	}
	m.State = reuse(reg, m.State)
	m.Transitions = reuse(reg, m.Transitions)
	m.Opened = reuse(reg, m.Opened)
	return m
}

func reuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) state(target string, s State) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(target).Set(float64(s))
}

func (m *Metrics) transition(target string, from, to State) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		m.Opened.WithLabelValues(target).Inc()
	}
}
