package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SIP-Compose/pkg/proof"
)

func newReadyNoir(t *testing.T, cfg Config) *Simulated {
	t.Helper()
	p, err := NewNoir(cfg)
	if err != nil {
		t.Fatalf("new noir provider: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := p.RegisterCircuit(Circuit{ID: "transfer-note", Version: "1.0.0"}); err != nil {
		t.Fatalf("register circuit: %v", err)
	}
	return p
}

func TestGenerateRequiresInitialization(t *testing.T) {
	p, err := NewNoir(Config{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "transfer-note"})
	if err == nil {
		t.Fatal("expected uninitialized provider to reject generation")
	}
	var ce *proof.CompositionError
	if !errors.As(err, &ce) || ce.Code != proof.CodeNotInitialized {
		t.Fatalf("expected NOT_INITIALIZED, got %v", err)
	}
}

func TestGenerateUnknownCircuit(t *testing.T) {
	p := newReadyNoir(t, Config{})
	_, err := p.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "missing"})
	if err == nil {
		t.Fatal("expected unknown circuit to fail")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected a not-found message, got %q", err)
	}
}

func TestGenerateAndVerifyDeterministic(t *testing.T) {
	p := newReadyNoir(t, Config{})
	ctx := context.Background()
	req := proof.GenerationRequest{
		CircuitID:    "transfer-note",
		PublicInputs: map[string]any{"nullifier": 7, "note_commitment": "0xabc"},
	}

	first, err := p.GenerateProof(ctx, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := p.GenerateProof(ctx, req)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("proof ids must be fresh per generation")
	}
	if first.Proof != second.Proof {
		t.Fatal("proof bytes must be deterministic for the same statement")
	}
	if first.Metadata.ProofSizeBytes != 2144 {
		t.Fatalf("unexpected noir proof size: %d", first.Metadata.ProofSizeBytes)
	}

	valid, err := p.VerifyProof(ctx, first)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid {
		t.Fatal("freshly generated proof failed verification")
	}

	tampered := first.Clone()
	tampered.PublicInputs = append([]string{"0x1"}, tampered.PublicInputs...)
	valid, err = p.VerifyProof(ctx, tampered)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if valid {
		t.Fatal("tampered proof verified")
	}
}

func TestVerifyRejectsSystemMismatch(t *testing.T) {
	p := newReadyNoir(t, Config{})
	other := &proof.SingleProof{
		ID:    "p",
		Proof: "0x01",
		Metadata: proof.Metadata{
			System:    proof.SystemHalo2,
			CircuitID: "transfer-note",
		},
	}
	_, err := p.VerifyProof(context.Background(), other)
	var ce *proof.CompositionError
	if !errors.As(err, &ce) || ce.Code != proof.CodeSystemMismatch {
		t.Fatalf("expected SYSTEM_MISMATCH, got %v", err)
	}
}

func TestVerifyRejectsExpiredProof(t *testing.T) {
	p := newReadyNoir(t, Config{DefaultExpiry: time.Millisecond})
	generated, err := p.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "transfer-note"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, err = p.VerifyProof(context.Background(), generated)
	var ce *proof.CompositionError
	if !errors.As(err, &ce) || ce.Code != proof.CodeProofExpired {
		t.Fatalf("expected PROOF_EXPIRED, got %v", err)
	}
}

func TestVerifyBatchPreservesOrder(t *testing.T) {
	p := newReadyNoir(t, Config{BatchVerification: true})
	ctx := context.Background()
	good, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	bad := good.Clone()
	bad.Proof = "0x00"

	results, err := p.VerifyBatch(ctx, []*proof.SingleProof{bad, good, bad})
	if err != nil {
		t.Fatalf("verify batch: %v", err)
	}
	want := []bool{false, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("result %d: expected %v, got %v", i, want[i], results[i])
		}
	}
}

func TestMetricsAccounting(t *testing.T) {
	p := newReadyNoir(t, Config{})
	ctx := context.Background()
	if _, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "missing"}); err == nil {
		t.Fatal("expected generation failure")
	}

	m := p.Metrics()
	if m.ProofsGenerated != 1 {
		t.Fatalf("expected 1 generated proof, got %d", m.ProofsGenerated)
	}
	// An unknown circuit is rejected before the attempt starts, so it does
	// not count against the success rate.
	if m.GenerationFailures != 0 {
		t.Fatalf("expected no recorded attempt failures, got %d", m.GenerationFailures)
	}
	if m.SuccessRate != 1 {
		t.Fatalf("expected success rate 1, got %f", m.SuccessRate)
	}
}

func TestLifecycleIdempotent(t *testing.T) {
	p := newReadyNoir(t, Config{})
	ctx := context.Background()
	if err := p.Initialize(ctx); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if err := p.Dispose(ctx); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := p.Dispose(ctx); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	_, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note"})
	var ce *proof.CompositionError
	if !errors.As(err, &ce) || ce.Code != proof.CodeDisposed {
		t.Fatalf("expected DISPOSED, got %v", err)
	}
}

func TestWaitUntilReadyTimesOut(t *testing.T) {
	p, err := NewHalo2(Config{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	err = p.WaitUntilReady(context.Background(), 20*time.Millisecond)
	var timeoutErr *proof.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestRecursionAdvertisedOnlyWhenEnabled(t *testing.T) {
	plain, err := NewKimchi(Config{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if plain.Capabilities().Recursion {
		t.Fatal("recursion advertised without being enabled")
	}
	recursive, err := NewKimchi(Config{EnableRecursion: true})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if !recursive.Capabilities().Recursion {
		t.Fatal("recursion not advertised despite configuration")
	}
}

func TestAggregateProofs(t *testing.T) {
	p := newReadyNoir(t, Config{Aggregation: true})
	ctx := context.Background()
	a, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note", PublicInputs: map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := p.GenerateProof(ctx, proof.GenerationRequest{CircuitID: "transfer-note", PublicInputs: map[string]any{"x": 2}})
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}

	agg, err := p.AggregateProofs(ctx, []*proof.SingleProof{a, b})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Metadata.CircuitID != "aggregate-2" {
		t.Fatalf("unexpected aggregate circuit id: %s", agg.Metadata.CircuitID)
	}
	if len(agg.PublicInputs) != len(a.PublicInputs)+len(b.PublicInputs) {
		t.Fatalf("aggregate inputs not unioned: %d", len(agg.PublicInputs))
	}

	bare := newReadyNoir(t, Config{ID: "noir-no-agg"})
	if _, err := bare.AggregateProofs(ctx, []*proof.SingleProof{a}); err == nil {
		t.Fatal("expected aggregation to be refused without the capability")
	}
}
