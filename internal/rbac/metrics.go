package rbac

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for permission resolution. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	auditFailures prometheus.Counter
	storeErrors   *prometheus.CounterVec
}

// NewMetrics registers the resolver metrics against registerer, falling back to
// the default Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatecrm_access_decisions_total",
			Help: "Permission checks by permission, outcome and reason.",
		}, []string{"permission", "granted", "reason"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estatecrm_access_audit_failures_total",
			Help: "Access-log writes that failed after a decision was made.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatecrm_access_store_errors_total",
			Help: "Store failures that made a permission check fail closed.",
		}, []string{"store"}),
	}
	registerer.MustRegister(m.decisions, m.auditFailures, m.storeErrors)
	return m
}

func (m *Metrics) observeDecision(permission string, d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(permission, strconv.FormatBool(d.Granted), d.Reason.String()).Inc()
}

func (m *Metrics) observeAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) observeStoreError(store string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(store).Inc()
}
