package composer

import (
	"context"
	"errors"
	"testing"

	"SIP-Compose/pkg/proof"
)

func composeTestProofs(t *testing.T, c *Composer, proofs []*proof.SingleProof) *proof.ComposedProof {
	t.Helper()
	result := c.Compose(context.Background(), proof.CompositionRequest{Proofs: proofs})
	if !result.Success {
		t.Fatalf("compose: %s", result.Error)
	}
	return result.Composed
}

func TestVerifySkippedWhenNotRequested(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	composed := composeTestProofs(t, c, generateTestProofs(t, c, 2, proof.SystemNoir))

	report := c.Verify(context.Background(), proof.VerificationRequest{Composed: composed})
	if !report.Valid {
		t.Fatal("skipped verification should be trivially valid")
	}
	if report.Method != proof.VerificationSkipped {
		t.Fatalf("expected skipped method, got %s", report.Method)
	}
	if len(report.Results) != 0 {
		t.Fatalf("expected no per-proof results, got %d", len(report.Results))
	}

	nilReport := c.Verify(context.Background(), proof.VerificationRequest{})
	if nilReport.Valid {
		t.Fatal("nil composed proof reported valid")
	}
}

func TestVerifyIndividual(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir, proof.SystemHalo2)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)
	proofs = append(proofs, generateTestProofs(t, c, 1, proof.SystemHalo2)...)
	composed := composeTestProofs(t, c, proofs)

	report := c.Verify(context.Background(), proof.VerificationRequest{
		Composed:         composed,
		VerifyIndividual: true,
	})
	if !report.Valid {
		t.Fatalf("expected a valid report: %+v", report)
	}
	if report.Method != proof.VerificationIndividual {
		t.Fatalf("expected individual method, got %s", report.Method)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	// Results stay in constituent order even though verification walks the
	// cheapest-first hint.
	for i, r := range report.Results {
		if r.ProofID != composed.Proofs[i].ID {
			t.Fatalf("result %d out of order: %s vs %s", i, r.ProofID, composed.Proofs[i].ID)
		}
	}
}

func TestVerifyDetectsInvalidConstituent(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)
	composed := composeTestProofs(t, c, proofs)
	composed.Proofs[1].Proof = "0x00"

	report := c.Verify(context.Background(), proof.VerificationRequest{
		Composed:         composed,
		VerifyIndividual: true,
	})
	if report.Valid {
		t.Fatal("report valid despite an invalid constituent")
	}
	if report.Results[0].Valid != true || report.Results[1].Valid != false {
		t.Fatalf("unexpected per-proof validity: %+v", report.Results)
	}
}

func TestVerifyBatchPath(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir, proof.SystemHalo2)
	proofs := generateTestProofs(t, c, 2, proof.SystemNoir)
	proofs = append(proofs, generateTestProofs(t, c, 2, proof.SystemHalo2)...)
	composed := composeTestProofs(t, c, proofs)

	report := c.Verify(context.Background(), proof.VerificationRequest{
		Composed:             composed,
		VerifyIndividual:     true,
		UseBatchVerification: true,
	})
	if !report.Valid {
		t.Fatalf("expected a valid batch report: %+v", report)
	}
	if report.Method != proof.VerificationBatch {
		t.Fatalf("expected batch method, got %s", report.Method)
	}
	for i, r := range report.Results {
		if r.ProofID != composed.Proofs[i].ID {
			t.Fatalf("result %d out of order", i)
		}
	}
}

func TestVerifySingleTypedErrors(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)

	if _, err := c.VerifySingle(context.Background(), nil); err == nil {
		t.Fatal("nil proof accepted")
	}

	orphan := &proof.SingleProof{
		ID:       "orphan",
		Proof:    "0x01",
		Metadata: proof.Metadata{System: proof.SystemKimchi},
	}
	_, err := c.VerifySingle(context.Background(), orphan)
	var notFound *proof.ProviderNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ProviderNotFoundError, got %v", err)
	}
	if notFound.System != proof.SystemKimchi {
		t.Fatalf("error names the wrong system: %s", notFound.System)
	}
}

func TestConvertSameSystem(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	p := generateTestProofs(t, c, 1, proof.SystemNoir)[0]
	p.Annotations = map[string]string{"origin": "test"}
	p.Conversion = &proof.ConversionStamp{SourceSystem: proof.SystemNoir}

	kept := c.Convert(context.Background(), proof.ConversionRequest{
		Proof:            p,
		TargetSystem:     proof.SystemNoir,
		PreserveMetadata: true,
	})
	if !kept.Success {
		t.Fatalf("convert: %s", kept.Error)
	}
	if kept.Proof.Annotations["origin"] != "test" || kept.Proof.Conversion == nil {
		t.Fatal("metadata not preserved")
	}

	stripped := c.Convert(context.Background(), proof.ConversionRequest{
		Proof:        p,
		TargetSystem: proof.SystemNoir,
	})
	if !stripped.Success {
		t.Fatalf("convert: %s", stripped.Error)
	}
	if stripped.Proof.Annotations != nil || stripped.Proof.Conversion != nil {
		t.Fatal("metadata not stripped")
	}
}

func TestConvertCrossSystemUnsupported(t *testing.T) {
	c := newTestComposer(t, proof.DefaultCompositionConfig(), proof.SystemNoir)
	p := generateTestProofs(t, c, 1, proof.SystemNoir)[0]
	result := c.Convert(context.Background(), proof.ConversionRequest{
		Proof:        p,
		TargetSystem: proof.SystemHalo2,
	})
	if result.Success {
		t.Fatal("cross-system conversion succeeded")
	}
	if result.ErrorCode != proof.CodeNotSupported {
		t.Fatalf("expected NOT_SUPPORTED, got %s", result.ErrorCode)
	}
}

func TestCompatibilityMatrixIsDiagonal(t *testing.T) {
	c := New(proof.DefaultCompositionConfig())
	matrix := c.CompatibilityMatrix()
	for a, row := range matrix {
		for b, compatible := range row {
			if compatible != (a == b) {
				t.Fatalf("matrix[%s][%s] = %v", a, b, compatible)
			}
		}
	}
	if !c.AreSystemsCompatible(proof.SystemNoir, proof.SystemNoir) {
		t.Fatal("same-system pair reported incompatible")
	}
	if c.AreSystemsCompatible("bogus", "bogus") {
		t.Fatal("unknown system reported compatible")
	}
}
