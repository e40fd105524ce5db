package composer

import (
	"context"
	"testing"

	"SIP-Compose/pkg/proof"
)

func generateTestProofs(t *testing.T, c *Composer, count int, system proof.System) []*proof.SingleProof {
	t.Helper()
	proofs := make([]*proof.SingleProof, count)
	for i := range proofs {
		result := c.GenerateProof(context.Background(), proof.GenerationRequest{
			CircuitID:    "transfer-note",
			System:       system,
			PublicInputs: map[string]any{"index": i},
		})
		if !result.Success {
			t.Fatalf("generate proof %d: %s", i, result.Error)
		}
		proofs[i] = result.Proof
	}
	return proofs
}

func TestComposeBundlesProofs(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir, proof.SystemHalo2)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)
	proofs = append(proofs, generateTestProofs(t, c, 1, proof.SystemHalo2)...)

	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if !result.Success {
		t.Fatalf("compose: %s", result.Error)
	}
	composed := result.Composed
	if composed.Metadata.ProofCount != 3 {
		t.Fatalf("expected proof count 3, got %d", composed.Metadata.ProofCount)
	}
	if len(composed.Metadata.Systems) != 2 {
		t.Fatalf("expected 2 distinct systems, got %v", composed.Metadata.Systems)
	}
	if !composed.Metadata.Success {
		t.Fatal("composition metadata not marked successful")
	}
	if composed.Strategy != proof.StrategySequential {
		t.Fatalf("expected the default strategy, got %s", composed.Strategy)
	}
	if len(composed.Hints.VerificationOrder) != 3 {
		t.Fatalf("missing verification order: %v", composed.Hints.VerificationOrder)
	}
	// Halo2's simulated proofs are the smallest, so the hint should rank the
	// halo2 constituent first.
	if first := composed.Proofs[composed.Hints.VerificationOrder[0]]; first.Metadata.System != proof.SystemHalo2 {
		t.Fatalf("expected the cheapest proof first, got %s", first.Metadata.System)
	}
}

func TestComposeCopiesInputs(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 1, proof.SystemNoir)
	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if !result.Success {
		t.Fatalf("compose: %s", result.Error)
	}
	proofs[0].PublicInputs[0] = "0xdead"
	if result.Composed.Proofs[0].PublicInputs[0] == "0xdead" {
		t.Fatal("composed proof shares the caller's slice")
	}
}

func TestComposeRejectsEmptyList(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	result := c.Compose(context.Background(), proof.CompositionRequest{})
	if result.Success {
		t.Fatal("empty composition succeeded")
	}
	if result.ErrorCode != proof.CodeInvalidProof {
		t.Fatalf("expected INVALID_PROOF, got %s", result.ErrorCode)
	}
}

func TestComposeRejectsTooManyProofs(t *testing.T) {
	cfg := proof.DefaultCompositionConfig()
	cfg.MaxProofs = 2
	c := newTestComposer(t, cfg, proof.SystemNoir)
	proofs := generateTestProofs(t, c, 3, proof.SystemNoir)

	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if result.Success {
		t.Fatal("oversized composition succeeded")
	}
	if result.ErrorCode != proof.CodeTooManyProofs {
		t.Fatalf("expected TOO_MANY_PROOFS, got %s", result.ErrorCode)
	}
}

func TestComposeRejectsMalformedProof(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 1, proof.SystemNoir)
	proofs[0] = proofs[0].Clone()
	proofs[0].Proof = "zz-not-hex"

	var failure string
	c.AddEventListener(func(e proof.CompositionEvent) {
		if e.Type == proof.EventFailed {
			failure = e.Error
		}
	})
	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if result.Success {
		t.Fatal("malformed proof composed")
	}
	if result.ErrorCode != proof.CodeInvalidProof {
		t.Fatalf("expected INVALID_PROOF, got %s", result.ErrorCode)
	}
	if failure == "" {
		t.Fatal("no failed event emitted")
	}
}

func TestComposeRejectsUnknownStrategy(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 1, proof.SystemNoir)
	result := c.Compose(context.Background(), proof.CompositionRequest{
		Proofs:   proofs,
		Strategy: "folding",
	})
	if result.Success {
		t.Fatal("unknown strategy accepted")
	}
	if result.ErrorCode != proof.CodeNotSupported {
		t.Fatalf("expected NOT_SUPPORTED, got %s", result.ErrorCode)
	}
}

func TestComposeCancelledAtEntry(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 1, proof.SystemNoir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := c.Compose(ctx, proof.CompositionRequest{Proofs: proofs})
	if result.Success {
		t.Fatal("composition succeeded on a cancelled context")
	}
	if result.ErrorCode != proof.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %s", result.ErrorCode)
	}
}

func TestComposeEmitsProgressEvents(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)

	var progress []float64
	c.AddEventListener(func(e proof.CompositionEvent) {
		if e.Type == proof.EventProgress {
			progress = append(progress, e.Progress)
		}
	})
	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if !result.Success {
		t.Fatalf("compose: %s", result.Error)
	}
	if len(progress) == 0 {
		t.Fatal("no progress events emitted")
	}
	last := progress[len(progress)-1]
	if last != 1 {
		t.Fatalf("expected final progress 1, got %f", last)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
}

func TestAggregateProofs(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)

	result := c.Aggregate(context.Background(), proof.AggregationRequest{
		Proofs:       proofs,
		TargetSystem: proof.SystemNoir,
		VerifyFirst:  true,
	})
	if !result.Success {
		t.Fatalf("aggregate: %s", result.Error)
	}
	if result.Proof.Metadata.System != proof.SystemNoir {
		t.Fatalf("unexpected aggregate system: %s", result.Proof.Metadata.System)
	}
}

func TestAggregateVerifyFirstRejectsBadProof(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)
	proofs[1] = proofs[1].Clone()
	proofs[1].Proof = "0x00"

	result := c.Aggregate(context.Background(), proof.AggregationRequest{
		Proofs:       proofs,
		TargetSystem: proof.SystemNoir,
		VerifyFirst:  true,
	})
	if result.Success {
		t.Fatal("aggregation accepted an invalid proof")
	}
	if result.ErrorCode != proof.CodeVerificationFailed {
		t.Fatalf("expected VERIFICATION_FAILED, got %s", result.ErrorCode)
	}
}

func TestAggregateMissingTargetProvider(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 1, proof.SystemNoir)
	result := c.Aggregate(context.Background(), proof.AggregationRequest{
		Proofs:       proofs,
		TargetSystem: proof.SystemKimchi,
	})
	if result.Success {
		t.Fatal("aggregation succeeded without a target provider")
	}
	if result.ErrorCode != proof.CodeProviderNotFound {
		t.Fatalf("expected PROVIDER_NOT_FOUND, got %s", result.ErrorCode)
	}
}
