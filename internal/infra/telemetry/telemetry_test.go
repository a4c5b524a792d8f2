package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.ObserveLogin("password", nil)
	m.ObserveLogin("password", errors.New("bad"))
	m.ObserveReconciliation(2, 1, 3, nil)
	m.ObserveGrantChange("replaced")

	if got := testutil.ToFloat64(m.logins.WithLabelValues("password", OutcomeFailure)); got != 1 {
		t.Fatalf("expected 1 failed login, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconciledNodes.WithLabelValues("deleted")); got != 3 {
		t.Fatalf("expected 3 deletions, got %v", got)
	}
	if got := testutil.ToFloat64(m.grantChanges.WithLabelValues("replaced")); got != 1 {
		t.Fatalf("expected 1 replacement, got %v", got)
	}
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}

	second.ObserveLogin("email_code", nil)
	if got := testutil.ToFloat64(first.logins.WithLabelValues("email_code", OutcomeSuccess)); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveLogin("password", nil)
	m.ObserveEmailCode("request", nil)
	m.ObserveReconciliation(1, 1, 1, nil)
	m.ObserveGrantChange("granted")
}
