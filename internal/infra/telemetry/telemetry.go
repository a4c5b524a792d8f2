package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rbac"

// Outcome labels shared by the service counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the business counters exported next to the HTTP collectors.
// All methods are safe on a nil receiver.
type Metrics struct {
	logins          *prometheus.CounterVec
	emailCodes      *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	reconciledNodes *prometheus.CounterVec
	grantChanges    *prometheus.CounterVec
}

// NewMetrics registers the service counters with reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts partitioned by method and outcome.",
		}, []string{"method", "outcome"}),
		emailCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_codes_total",
			Help:      "Email code operations partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_reconciliations_total",
			Help:      "Menu-to-permission reconciliations partitioned by outcome.",
		}, []string{"outcome"}),
		reconciledNodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_reconciled_permissions_total",
			Help:      "Permission writes applied by reconciliations partitioned by action.",
		}, []string{"action"}),
		grantChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_permission_changes_total",
			Help:      "Role permission grant operations partitioned by kind.",
		}, []string{"kind"}),
	}

	var err error
	if m.logins, err = register(reg, m.logins); err != nil {
		return nil, err
	}
	if m.emailCodes, err = register(reg, m.emailCodes); err != nil {
		return nil, err
	}
	if m.reconciliations, err = register(reg, m.reconciliations); err != nil {
		return nil, err
	}
	if m.reconciledNodes, err = register(reg, m.reconciledNodes); err != nil {
		return nil, err
	}
	if m.grantChanges, err = register(reg, m.grantChanges); err != nil {
		return nil, err
	}

	return m, nil
}

func register(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return vec, nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveLogin counts a login attempt for method ("password" or "email_code").
func (m *Metrics) ObserveLogin(method string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome(err)).Inc()
}

// ObserveEmailCode counts a code request or verification.
func (m *Metrics) ObserveEmailCode(stage string, err error) {
	if m == nil {
		return
	}
	m.emailCodes.WithLabelValues(stage, outcome(err)).Inc()
}

// ObserveReconciliation counts a reconciliation run and the writes it applied.
func (m *Metrics) ObserveReconciliation(created, reparented, deleted int, err error) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	m.reconciledNodes.WithLabelValues("created").Add(float64(created))
	m.reconciledNodes.WithLabelValues("reparented").Add(float64(reparented))
	m.reconciledNodes.WithLabelValues("deleted").Add(float64(deleted))
}

// ObserveGrantChange counts a role permission grant ("granted") or replacement ("replaced").
func (m *Metrics) ObserveGrantChange(kind string) {
	if m == nil {
		return
	}
	m.grantChanges.WithLabelValues(kind).Inc()
}
