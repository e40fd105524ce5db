package groth16

import (
	"context"
	"errors"
	"math/big"
	"testing"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	gcmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

// mimcHash computes the out-of-circuit MiMC hash matching the preimage
// circuit's constraint.
func mimcHash(value *big.Int) *big.Int {
	var element fr.Element
	element.SetBigInt(value)
	encoded := element.Bytes()
	hasher := gcmimc.NewMiMC()
	hasher.Write(encoded[:])
	return new(big.Int).SetBytes(hasher.Sum(nil))
}

func newReadyProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(provider.Config{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = p.Dispose(context.Background()) })
	return p
}

func TestGroth16PreimageRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("trusted setup is too slow for short mode")
	}
	p := newReadyProvider(t)

	preimage := big.NewInt(42)
	sp, err := p.GenerateProof(context.Background(), proof.GenerationRequest{
		CircuitID:     PreimageCircuitID,
		PrivateInputs: map[string]any{"preimage": preimage},
		PublicInputs:  map[string]any{"hash": mimcHash(preimage)},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sp.Metadata.System != proof.SystemGroth16 {
		t.Fatalf("unexpected system: %s", sp.Metadata.System)
	}
	if sp.Metadata.ProofSizeBytes == 0 || sp.VerificationKey == "" {
		t.Fatalf("proof not serialized: %+v", sp.Metadata)
	}

	valid, err := p.VerifyProof(context.Background(), sp)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid {
		t.Fatal("honest proof rejected")
	}

	forged := sp.Clone()
	wrongHash, _ := proof.CanonicalHex(mimcHash(big.NewInt(43)))
	forged.PublicInputs[0] = wrongHash
	valid, err = p.VerifyProof(context.Background(), forged)
	if err != nil {
		t.Fatalf("verify forged: %v", err)
	}
	if valid {
		t.Fatal("proof verified against the wrong public input")
	}
}

func TestGroth16RejectsWrongWitness(t *testing.T) {
	if testing.Short() {
		t.Skip("trusted setup is too slow for short mode")
	}
	p := newReadyProvider(t)

	_, err := p.GenerateProof(context.Background(), proof.GenerationRequest{
		CircuitID:     PreimageCircuitID,
		PrivateInputs: map[string]any{"preimage": big.NewInt(7)},
		PublicInputs:  map[string]any{"hash": mimcHash(big.NewInt(8))},
	})
	if err == nil {
		t.Fatal("proving succeeded with an unsatisfied witness")
	}
	var compErr *proof.CompositionError
	if !errors.As(err, &compErr) {
		t.Fatalf("unexpected error type: %v", err)
	}
}

func TestGroth16UnknownCircuit(t *testing.T) {
	p := newReadyProvider(t)
	_, err := p.GenerateProof(context.Background(), proof.GenerationRequest{CircuitID: "missing"})
	if err == nil {
		t.Fatal("unknown circuit accepted")
	}
	var compErr *proof.CompositionError
	if !errors.As(err, &compErr) || compErr.Code != proof.CodeCircuitNotFound {
		t.Fatalf("expected CIRCUIT_NOT_FOUND, got %v", err)
	}
}

func TestGroth16VerifyRejectsOtherSystems(t *testing.T) {
	p := newReadyProvider(t)
	_, err := p.VerifyProof(context.Background(), &proof.SingleProof{
		ID:       "foreign",
		Proof:    "0x01",
		Metadata: proof.Metadata{System: proof.SystemNoir},
	})
	var compErr *proof.CompositionError
	if !errors.As(err, &compErr) || compErr.Code != proof.CodeSystemMismatch {
		t.Fatalf("expected SYSTEM_MISMATCH, got %v", err)
	}
}
