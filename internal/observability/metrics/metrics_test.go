package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SIP-Compose/pkg/proof"
)

// The registry is process-wide, so the assertions below check for presence
// and relative counts rather than an exact document.

func TestObserveOperationRenders(t *testing.T) {
	ObserveOperation("generate", proof.SystemNoir, true, 20*time.Millisecond)
	ObserveOperation("generate", proof.SystemNoir, false, 5*time.Millisecond)
	ObserveOperation("verify", proof.SystemHalo2, true, 2*time.Millisecond)

	rendered := proofCollector.render()
	for _, want := range []string{
		"# TYPE sipcompose_proof_operations_total counter",
		`sipcompose_proof_operations_total{operation="generate",system="noir",outcome="success"}`,
		`sipcompose_proof_operations_total{operation="generate",system="noir",outcome="failure"}`,
		`sipcompose_proof_operation_errors_total{operation="generate",system="noir"}`,
		"# TYPE sipcompose_proof_operation_duration_seconds histogram",
		`sipcompose_proof_operation_duration_seconds_bucket{operation="verify",system="halo2",le="+Inf"}`,
		`sipcompose_proof_operation_duration_seconds_count{operation="generate",system="noir"}`,
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("missing %q in rendered output:\n%s", want, rendered)
		}
	}
	if strings.Contains(rendered, `errors_total{operation="verify"`) {
		t.Fatal("a successful operation was counted as an error")
	}
}

func TestCollectorImplementsTelemetry(t *testing.T) {
	var sink proof.TelemetryCollector = Collector{}
	sink.Record(proof.OperationTelemetry{
		Operation: "compose",
		System:    proof.SystemKimchi,
		Success:   true,
		Duration:  7 * time.Millisecond,
	})

	rendered := proofCollector.render()
	if !strings.Contains(rendered, `operation="compose",system="kimchi",outcome="success"`) {
		t.Fatalf("telemetry sample not recorded:\n%s", rendered)
	}
}

func TestHistogramBucketBounds(t *testing.T) {
	h := newHistogram()
	h.observe(0.009)
	h.observe(0.3)
	h.observe(60)

	if h.count != 3 {
		t.Fatalf("expected 3 observations, got %d", h.count)
	}
	// 0.009 lands in every bucket, 0.3 from le=0.5 up, 60 in none.
	if h.counts[0] != 1 {
		t.Fatalf("le=0.01 should hold 1, got %d", h.counts[0])
	}
	last := h.counts[len(h.counts)-1]
	if last != 2 {
		t.Fatalf("le=30 should hold 2, got %d", last)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	ObserveOperation("aggregate", proof.SystemNoir, true, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	res := rec.Result()
	defer res.Body.Close()

	if got := res.Header.Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type: %s", got)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `operation="aggregate"`) {
		t.Fatal("handler output missing the recorded operation")
	}
}
