package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "debounce"

// Result labels for Decisions.
const (
	ResultRedirected = "redirected"
	ResultUnchanged  = "unchanged"
	ResultSkipped    = "skipped"
)

// Metrics groups the collectors exported by the debounce service.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Reloads       *prometheus.CounterVec
	RulesLoaded   prometheus.Gauge
	FetchFailures prometheus.Counter
}

// New registers all collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Debounce decisions by result.",
		}, []string{"result"}),
		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rule list reloads by status.",
		}, []string{"status"}),
		RulesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of rules in the active rule list.",
		}),
		FetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_fetch_failures_total",
			Help:      "Failed attempts to fetch the rule payload.",
		}),
	}
}

// ObserveDebounce counts one decision. Safe on a nil receiver.
func (m *Metrics) ObserveDebounce(result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(result).Inc()
}

// ObserveReload records a reload attempt and the rule count it published.
func (m *Metrics) ObserveReload(count int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Reloads.WithLabelValues(status).Inc()
	m.RulesLoaded.Set(float64(count))
}

// ObserveFetchFailure counts a failed source fetch.
func (m *Metrics) ObserveFetchFailure() {
	if m == nil {
		return
	}
	m.FetchFailures.Inc()
}
