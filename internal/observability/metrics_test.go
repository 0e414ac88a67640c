package observability

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersWithoutPanicking(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
}

func TestQueriesProcessedTotalIncrementsByAction(t *testing.T) {
	m := NewMetrics()
	m.QueriesProcessedTotal.WithLabelValues("direct_answer").Inc()
	m.QueriesProcessedTotal.WithLabelValues("escalate").Inc()
	m.QueriesProcessedTotal.WithLabelValues("escalate").Inc()

	if got := testutil.ToFloat64(m.QueriesProcessedTotal.WithLabelValues("escalate")); got != 2 {
		t.Fatalf("escalate counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueriesProcessedTotal.WithLabelValues("direct_answer")); got != 1 {
		t.Fatalf("direct_answer counter = %v, want 1", got)
	}
}

func TestSafetyViolationsTotalLabelsByTypeAndSeverity(t *testing.T) {
	m := NewMetrics()
	m.SafetyViolationsTotal.WithLabelValues("exceeds_change_limit", "critical").Inc()

	if got := testutil.ToFloat64(m.SafetyViolationsTotal.WithLabelValues("exceeds_change_limit", "critical")); got != 1 {
		t.Fatalf("violation counter = %v, want 1", got)
	}
}

func TestServeMetricsShutsDownOnContextCancel(t *testing.T) {
	m := NewMetrics()
	m.BudgetTokensRemaining.Set(42)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.ServeMetrics(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Fatalf("ServeMetrics returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMetrics did not shut down after context cancellation")
	}
}
