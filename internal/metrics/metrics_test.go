package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCounters(t *testing.T) {
	testCases := []struct {
		name    string
		counter interface {
			Inc()
		}
		read func() float64
	}{
		{"requests", Requests, func() float64 { return testutil.ToFloat64(Requests) }},
		{"retries", Retries, func() float64 { return testutil.ToFloat64(Retries) }},
		{"records extracted", RecordsExtracted, func() float64 { return testutil.ToFloat64(RecordsExtracted) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.read()
			tc.counter.Inc()
			if got := tc.read() - before; got != 1 {
				t.Errorf("counter %s advanced by %f; want 1", tc.name, got)
			}
		})
	}
}

func TestFetchFailuresLabeledByKind(t *testing.T) {
	transport := FetchFailures.WithLabelValues("transport")
	integrity := FetchFailures.WithLabelValues("integrity")

	before := testutil.ToFloat64(transport)
	transport.Inc()
	transport.Inc()

	if got := testutil.ToFloat64(transport) - before; got != 2 {
		t.Errorf("transport failures advanced by %f; want 2", got)
	}
	if got := testutil.ToFloat64(integrity); got != 0 {
		t.Errorf("integrity failures = %f; want 0, kinds must not share a series", got)
	}
}

func TestBackoffSecondsObservations(t *testing.T) {
	var before dto.Metric
	if err := BackoffSeconds.Write(&before); err != nil {
		t.Fatalf("reading histogram: %v", err)
	}

	BackoffSeconds.Observe(4)
	BackoffSeconds.Observe(16)

	var after dto.Metric
	if err := BackoffSeconds.Write(&after); err != nil {
		t.Fatalf("reading histogram: %v", err)
	}

	if got := after.Histogram.GetSampleCount() - before.Histogram.GetSampleCount(); got != 2 {
		t.Errorf("histogram sample count advanced by %d; want 2", got)
	}
	if got := after.Histogram.GetSampleSum() - before.Histogram.GetSampleSum(); got != 20 {
		t.Errorf("histogram sample sum advanced by %f; want 20", got)
	}
}
