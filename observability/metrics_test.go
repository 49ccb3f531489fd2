package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %s not registered", name)
	return nil
}

func labelled(family *dto.MetricFamily, want map[string]string) *dto.Metric {
	for _, metric := range family.Metric {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if value, ok := want[pair.GetName()]; ok && value == pair.GetValue() {
				matched++
			}
		}
		if matched == len(want) {
			return metric
		}
	}
	return nil
}

func TestLendingMetricsRecordOutcomes(t *testing.T) {
	m := Lending()
	m.ObserveOperation("metrics_test_borrow", 15*time.Millisecond, nil)
	m.ObserveOperation("metrics_test_borrow", 5*time.Millisecond, errors.New("boom"))
	m.RecordOracleFailure("")

	ops := gatherFamily(t, "lendhub_lending_operations_total")
	success := labelled(ops, map[string]string{"operation": "metrics_test_borrow", "outcome": "success"})
	failure := labelled(ops, map[string]string{"operation": "metrics_test_borrow", "outcome": "error"})
	if success == nil || failure == nil {
		t.Fatalf("expected both outcomes to be recorded")
	}
	if success.GetCounter().GetValue() != 1 || failure.GetCounter().GetValue() != 1 {
		t.Fatalf("unexpected counts: %v / %v", success.GetCounter().GetValue(), failure.GetCounter().GetValue())
	}

	latency := labelled(gatherFamily(t, "lendhub_lending_operation_duration_seconds"), map[string]string{"operation": "metrics_test_borrow"})
	if latency == nil || latency.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected two latency samples")
	}

	if labelled(gatherFamily(t, "lendhub_lending_oracle_failures_total"), map[string]string{"operation": "unknown"}) == nil {
		t.Fatalf("expected empty operation to be labelled unknown")
	}
}

func TestLendingMetricsPoolGauges(t *testing.T) {
	m := Lending()
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	m.RecordPool("METRICS-0001", big.NewInt(40_000), huge, big.NewInt(20_000))

	reserves := labelled(gatherFamily(t, "lendhub_lending_pool_reserves"), map[string]string{"asset": "METRICS-0001"})
	if reserves == nil || reserves.GetGauge().GetValue() != 40_000 {
		t.Fatalf("unexpected reserves gauge: %v", reserves)
	}
	borrowed := labelled(gatherFamily(t, "lendhub_lending_pool_borrowed"), map[string]string{"asset": "METRICS-0001"})
	if borrowed == nil || borrowed.GetGauge().GetValue() != 0 {
		t.Fatalf("expected out-of-range value to clamp to zero: %v", borrowed)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var lending *LendingMetrics
	lending.ObserveOperation("x", time.Second, nil)
	lending.RecordEvent("x")
	lending.RecordLiquidation("x")
	lending.RecordPool("x", nil, nil, nil)

	var httpMetrics *HTTPMetrics
	httpMetrics.Observe("/x", "GET", 200, time.Second)
	httpMetrics.RecordThrottle("x")
}

func TestHTTPMetricsObserve(t *testing.T) {
	m := HTTP()
	m.Observe("/v1/metrics-test", "GET", 404, time.Millisecond)
	m.RecordThrottle("metrics-test")

	requests := labelled(gatherFamily(t, "lendhub_http_requests_total"), map[string]string{"route": "/v1/metrics-test", "method": "GET", "status": "404"})
	if requests == nil || requests.GetCounter().GetValue() != 1 {
		t.Fatalf("unexpected request counter: %v", requests)
	}
	if labelled(gatherFamily(t, "lendhub_http_throttles_total"), map[string]string{"reason": "metrics-test"}) == nil {
		t.Fatalf("throttle not recorded")
	}
}
