// Package metrics collects proof operation counters and latency histograms
// and exposes them in Prometheus text exposition format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"SIP-Compose/pkg/proof"
)

type operationKey struct {
	operation string
	system    string
	outcome   string
}

type latencyKey struct {
	operation string
	system    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu         sync.Mutex
	operations map[operationKey]uint64
	errors     map[operationKey]uint64
	latency    map[latencyKey]*histogram
}

var proofCollector = &collector{
	operations: make(map[operationKey]uint64),
	errors:     make(map[operationKey]uint64),
	latency:    make(map[latencyKey]*histogram),
}

// ObserveOperation records one proof operation outcome.
func ObserveOperation(operation string, system proof.System, success bool, duration time.Duration) {
	proofCollector.observe(operation, string(system), success, duration)
}

// Collector implements proof.TelemetryCollector on top of the process-wide
// registry so the composer can feed it directly.
type Collector struct{}

// Record implements proof.TelemetryCollector.
func (Collector) Record(op proof.OperationTelemetry) {
	proofCollector.observe(op.Operation, string(op.System), op.Success, op.Duration)
}

func (c *collector) observe(operation, system string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	opKey := operationKey{operation: operation, system: system, outcome: outcome}
	c.operations[opKey]++
	if !success {
		c.errors[operationKey{operation: operation, system: system}]++
	}

	latKey := latencyKey{operation: operation, system: system}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, proofCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type operationMetric struct {
		operationKey
		value uint64
	}
	type latencyMetric struct {
		latencyKey
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	ops := make([]operationMetric, 0, len(c.operations))
	for key, value := range c.operations {
		ops = append(ops, operationMetric{operationKey: key, value: value})
	}
	errs := make([]operationMetric, 0, len(c.errors))
	for key, value := range c.errors {
		errs = append(errs, operationMetric{operationKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for key, hist := range c.latency {
		lats = append(lats, latencyMetric{
			latencyKey: key,
			buckets:    append([]float64(nil), hist.buckets...),
			counts:     append([]uint64(nil), hist.counts...),
			sum:        hist.sum,
			count:      hist.count,
		})
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].operation == ops[j].operation {
			if ops[i].system == ops[j].system {
				return ops[i].outcome < ops[j].outcome
			}
			return ops[i].system < ops[j].system
		}
		return ops[i].operation < ops[j].operation
	})
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].operation == errs[j].operation {
			return errs[i].system < errs[j].system
		}
		return errs[i].operation < errs[j].operation
	})
	sort.Slice(lats, func(i, j int) bool {
		if lats[i].operation == lats[j].operation {
			return lats[i].system < lats[j].system
		}
		return lats[i].operation < lats[j].operation
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP sipcompose_proof_operations_total Total number of proof operations executed.\n")
	builder.WriteString("# TYPE sipcompose_proof_operations_total counter\n")
	for _, metric := range ops {
		builder.WriteString(fmt.Sprintf("sipcompose_proof_operations_total{operation=\"%s\",system=\"%s\",outcome=\"%s\"} %d\n",
			escape(metric.operation), escape(metric.system), escape(metric.outcome), metric.value))
	}

	builder.WriteString("# HELP sipcompose_proof_operation_errors_total Total number of proof operations that failed.\n")
	builder.WriteString("# TYPE sipcompose_proof_operation_errors_total counter\n")
	for _, metric := range errs {
		builder.WriteString(fmt.Sprintf("sipcompose_proof_operation_errors_total{operation=\"%s\",system=\"%s\"} %d\n",
			escape(metric.operation), escape(metric.system), metric.value))
	}

	builder.WriteString("# HELP sipcompose_proof_operation_duration_seconds Proof operation duration in seconds.\n")
	builder.WriteString("# TYPE sipcompose_proof_operation_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("sipcompose_proof_operation_duration_seconds_bucket{operation=\"%s\",system=\"%s\",le=\"%s\"} %d\n",
				escape(metric.operation), escape(metric.system), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("sipcompose_proof_operation_duration_seconds_bucket{operation=\"%s\",system=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.operation), escape(metric.system), metric.count))
		builder.WriteString(fmt.Sprintf("sipcompose_proof_operation_duration_seconds_sum{operation=\"%s\",system=\"%s\"} %s\n",
			escape(metric.operation), escape(metric.system), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("sipcompose_proof_operation_duration_seconds_count{operation=\"%s\",system=\"%s\"} %d\n",
			escape(metric.operation), escape(metric.system), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
