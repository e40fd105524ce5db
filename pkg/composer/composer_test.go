package composer

import (
	"context"
	"errors"
	"testing"

	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

// newTestComposer builds a composer with initialized simulated providers for
// the given systems, each knowing the transfer-note circuit.
func newTestComposer(t *testing.T, cfg proof.CompositionConfig, systems ...proof.System) *Composer {
	t.Helper()
	c := New(cfg)
	for i, system := range systems {
		p, err := provider.NewSimulated(system, provider.Config{BatchVerification: true, Aggregation: true})
		if err != nil {
			t.Fatalf("new %s provider: %v", system, err)
		}
		if err := p.RegisterCircuit(provider.Circuit{ID: "transfer-note", Version: "1.0.0"}); err != nil {
			t.Fatalf("register circuit: %v", err)
		}
		if _, err := c.RegisterProvider(p, RegisterOptions{Priority: 100 - i}); err != nil {
			t.Fatalf("register %s provider: %v", system, err)
		}
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize composer: %v", err)
	}
	return c
}

func TestRegisterProviderRejectsDuplicates(t *testing.T) {
	c := New(proof.DefaultCompositionConfig())
	first, err := provider.NewNoir(provider.Config{ID: "noir-a"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	second, err := provider.NewNoir(provider.Config{ID: "noir-b"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := c.RegisterProvider(first, RegisterOptions{}); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if _, err := c.RegisterProvider(second, RegisterOptions{}); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	reg, err := c.RegisterProvider(second, RegisterOptions{Override: true})
	if err != nil {
		t.Fatalf("override registration: %v", err)
	}
	if reg.ID != "noir-b" {
		t.Fatalf("override kept the wrong provider: %s", reg.ID)
	}
	if got := len(c.Registrations()); got != 1 {
		t.Fatalf("expected exactly one registration after override, got %d", got)
	}
}

func TestRegisterProviderAppliesPolicy(t *testing.T) {
	c := New(proof.DefaultCompositionConfig())
	p, err := provider.NewNoir(provider.Config{Aggregation: true})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	policy := provider.Policy{DeniedCapabilities: []provider.Capability{provider.CapabilityAggregation}}
	if _, err := c.RegisterProvider(p, RegisterOptions{Policy: policy}); err == nil {
		t.Fatal("policy violation accepted")
	}
}

func TestRegistrationsOrderedByPriority(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(),
		proof.SystemKimchi, proof.SystemNoir, proof.SystemHalo2)
	regs := c.Registrations()
	if len(regs) != 3 {
		t.Fatalf("expected 3 registrations, got %d", len(regs))
	}
	for i := 1; i < len(regs); i++ {
		if regs[i-1].Priority < regs[i].Priority {
			t.Fatalf("registrations not ordered by priority: %+v", regs)
		}
	}
	if regs[0].System != proof.SystemKimchi {
		t.Fatalf("expected the first-registered system to lead, got %s", regs[0].System)
	}
}

func TestUnregisterProvider(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	if !c.UnregisterProvider("noir-simulated") {
		t.Fatal("known provider not unregistered")
	}
	if c.UnregisterProvider("noir-simulated") {
		t.Fatal("second unregister reported success")
	}
	if _, ok := c.ProviderForSystem(proof.SystemNoir); ok {
		t.Fatal("provider still resolvable after unregister")
	}
}

func TestDisposeIsIdempotentAndGuards(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	ctx := context.Background()
	if err := c.Dispose(ctx); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := c.Dispose(ctx); err != nil {
		t.Fatalf("second dispose: %v", err)
	}

	result := c.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note"})
	if result.Success {
		t.Fatal("generation succeeded on a disposed composer")
	}
	if result.ErrorCode != proof.CodeDisposed {
		t.Fatalf("expected DISPOSED, got %s", result.ErrorCode)
	}

	err := c.Initialize(ctx)
	var ce *proof.CompositionError
	if !errors.As(err, &ce) || ce.Code != proof.CodeDisposed {
		t.Fatalf("expected DISPOSED from Initialize, got %v", err)
	}
}

func TestEventListenerPanicIsolated(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	var events []proof.EventType
	c.AddEventListener(func(proof.CompositionEvent) {
		panic("listener exploded")
	})
	c.AddEventListener(func(e proof.CompositionEvent) {
		events = append(events, e.Type)
	})

	generated := c.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "transfer-note"})
	if !generated.Success {
		t.Fatalf("generate: %s", generated.Error)
	}
	result := c.Compose(context.Background(), proof.CompositionRequest{
		Proofs: []*proof.SingleProof{generated.Proof},
	})
	if !result.Success {
		t.Fatalf("compose despite panicking listener: %s", result.Error)
	}
	if len(events) == 0 || events[0] != proof.EventStarted || events[len(events)-1] != proof.EventCompleted {
		t.Fatalf("unexpected event sequence: %v", events)
	}
}

func TestRemoveEventListener(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	calls := 0
	id := c.AddEventListener(func(proof.CompositionEvent) { calls++ })
	if !c.RemoveEventListener(id) {
		t.Fatal("listener not removed")
	}
	if c.RemoveEventListener(id) {
		t.Fatal("second removal reported success")
	}
	generated := c.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "transfer-note"})
	c.Compose(context.Background(), proof.CompositionRequest{Proofs: []*proof.SingleProof{generated.Proof}})
	if calls != 0 {
		t.Fatalf("removed listener still invoked %d times", calls)
	}
}

type recordingCollector struct {
	records []proof.OperationTelemetry
}

func (r *recordingCollector) Record(op proof.OperationTelemetry) {
	r.records = append(r.records, op)
}

func TestTelemetryCollectorReceivesSamples(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	sink := &recordingCollector{}
	c.SetTelemetryCollector(sink)

	result := c.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "transfer-note"})
	if !result.Success {
		t.Fatalf("generate: %s", result.Error)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 telemetry record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Operation != "generate" || !rec.Success || rec.System != proof.SystemNoir {
		t.Fatalf("unexpected telemetry record: %+v", rec)
	}
}

func TestScaleWorkerPoolClamped(t *testing.T) {
	c := New(proof.DefaultCompositionConfig())
	if got := c.ScaleWorkerPool(0); got != 1 {
		t.Fatalf("expected pool clamped to 1, got %d", got)
	}
	if got := c.ScaleWorkerPool(-5); got != 1 {
		t.Fatalf("expected pool clamped to 1, got %d", got)
	}
	if got := c.ScaleWorkerPool(8); got != 8 {
		t.Fatalf("expected pool size 8, got %d", got)
	}
	if status := c.WorkerPoolStatus(); status.Size != 8 || status.Active != 0 {
		t.Fatalf("unexpected pool status: %+v", status)
	}
}
