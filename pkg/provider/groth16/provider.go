// Package groth16 provides a real proving backend on top of gnark's Groth16
// implementation over BN254. Circuits are registered as Definitions; proving
// and verifying keys are derived once per circuit and cached.
package groth16

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	backend "github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/google/uuid"

	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

const gnarkVersion = "0.13.0"

// Definition describes a provable circuit: a blank template for compilation
// and an assignment builder for witnesses. Assign must tolerate a nil private
// map, since verification rebuilds the public witness alone.
type Definition interface {
	Template() frontend.Circuit
	Assign(private, public map[string]any) (frontend.Circuit, error)
}

// setupEntry caches the trusted setup artifacts for one circuit.
type setupEntry struct {
	ccs constraint.ConstraintSystem
	pk  backend.ProvingKey
	vk  backend.VerifyingKey
}

// Provider proves and verifies Groth16 proofs in process.
type Provider struct {
	provider.Base
	cfg provider.Config

	mu          sync.Mutex
	definitions map[string]Definition
	setups      map[string]*setupEntry
}

// New builds a Groth16 provider with the built-in MiMC preimage circuit
// registered.
func New(cfg provider.Config) (*Provider, error) {
	if cfg.ID == "" {
		cfg.ID = "groth16-gnark"
	}
	if cfg.Name == "" {
		cfg.Name = "gnark Groth16 provider"
	}
	if cfg.Version == "" {
		cfg.Version = gnarkVersion
	}
	if len(cfg.Platforms) == 0 {
		cfg.Platforms = []string{"linux", "darwin"}
	}
	info := provider.Info{ID: cfg.ID, Name: cfg.Name, System: proof.SystemGroth16, Version: cfg.Version}
	caps := provider.Capabilities{
		BatchVerification: cfg.BatchVerification,
		Recursion:         cfg.EnableRecursion,
		Aggregation:       cfg.Aggregation,
		Platforms:         cfg.Platforms,
	}
	p := &Provider{
		Base:        provider.NewBase(info, caps, cfg),
		cfg:         cfg,
		definitions: make(map[string]Definition),
		setups:      make(map[string]*setupEntry),
	}
	if err := p.RegisterDefinition(PreimageCircuitID, PreimageDefinition{}, provider.Circuit{
		ID:          PreimageCircuitID,
		Version:     "1",
		Description: "knowledge of a MiMC hash preimage",
		PublicNames: []string{"hash"},
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// RegisterDefinition registers a circuit definition together with its
// descriptive record.
func (p *Provider) RegisterDefinition(circuitID string, def Definition, circuit provider.Circuit) error {
	if def == nil {
		return &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			Message: "circuit definition is nil",
		}
	}
	circuit.ID = circuitID
	if err := p.Base.RegisterCircuit(circuit); err != nil {
		return err
	}
	p.mu.Lock()
	p.definitions[circuitID] = def
	p.mu.Unlock()
	return nil
}

// LoadCircuitKeys runs compilation and trusted setup eagerly so the first
// GenerateProof call does not pay for it.
func (p *Provider) LoadCircuitKeys(ctx context.Context, circuitID string) error {
	if _, err := p.ensureSetup(circuitID); err != nil {
		return err
	}
	return p.Base.LoadCircuitKeys(ctx, circuitID)
}

func (p *Provider) definition(circuitID string) (Definition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	def, ok := p.definitions[circuitID]
	return def, ok
}

// ensureSetup compiles the circuit and runs the Groth16 setup once, caching
// the constraint system and key pair.
func (p *Provider) ensureSetup(circuitID string) (*setupEntry, error) {
	def, ok := p.definition(circuitID)
	if !ok {
		return nil, provider.CircuitNotFoundError(proof.SystemGroth16, circuitID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.setups[circuitID]; ok {
		return entry, nil
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, def.Template())
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			Message: fmt.Sprintf("compile circuit %s", circuitID),
			Cause:   err,
		}
	}
	pk, vk, err := backend.Setup(ccs)
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeProviderNotReady,
			System:  proof.SystemGroth16,
			Message: fmt.Sprintf("trusted setup for circuit %s", circuitID),
			Cause:   err,
		}
	}
	entry := &setupEntry{ccs: ccs, pk: pk, vk: vk}
	p.setups[circuitID] = entry
	return entry, nil
}

// GenerateProof implements provider.Provider.
func (p *Provider) GenerateProof(ctx context.Context, req proof.GenerationRequest) (*proof.SingleProof, error) {
	if err := p.EnsureReady(); err != nil {
		return nil, err
	}
	if !p.HasCircuit(req.CircuitID) {
		return nil, provider.CircuitNotFoundError(proof.SystemGroth16, req.CircuitID)
	}
	p.StartJob()
	start := time.Now()
	sp, err := p.generate(ctx, req)
	p.RecordGeneration(time.Since(start), err)
	p.FinishJob(err)
	return sp, err
}

func (p *Provider) generate(ctx context.Context, req proof.GenerationRequest) (*proof.SingleProof, error) {
	publicInputs, err := proof.CanonicalInputs(req.PublicInputs)
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			Message: "public inputs are not canonicalizable",
			Cause:   err,
		}
	}
	entry, err := p.ensureSetup(req.CircuitID)
	if err != nil {
		return nil, err
	}
	def, _ := p.definition(req.CircuitID)
	assignment, err := def.Assign(req.PrivateInputs, req.PublicInputs)
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			Message: "build witness assignment",
			Cause:   err,
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, proof.NewTimeoutError("generate proof on "+p.Info().ID, err)
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			Message: "build witness",
			Cause:   err,
		}
	}
	proofObj, err := backend.Prove(entry.ccs, entry.pk, w)
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  proof.SystemGroth16,
			Message: "prove",
			Cause:   err,
		}
	}
	var proofBuf bytes.Buffer
	if _, err := proofObj.WriteTo(&proofBuf); err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  proof.SystemGroth16,
			Message: "serialize proof",
			Cause:   err,
		}
	}
	var vkBuf bytes.Buffer
	if _, err := entry.vk.WriteTo(&vkBuf); err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  proof.SystemGroth16,
			Message: "serialize verifying key",
			Cause:   err,
		}
	}

	circuit, _ := p.CircuitByID(req.CircuitID)
	meta := proof.Metadata{
		System:         proof.SystemGroth16,
		SystemVersion:  gnarkVersion,
		CircuitID:      req.CircuitID,
		CircuitVersion: circuit.Version,
		GeneratedAt:    time.Now().UnixMilli(),
		ProofSizeBytes: proofBuf.Len(),
	}
	if p.cfg.DefaultExpiry > 0 {
		meta.ExpiresAt = time.Now().Add(p.cfg.DefaultExpiry).UnixMilli()
	}
	return &proof.SingleProof{
		ID:              uuid.NewString(),
		Proof:           proof.EncodeProofBytes(proofBuf.Bytes()),
		PublicInputs:    publicInputs,
		VerificationKey: proof.EncodeProofBytes(vkBuf.Bytes()),
		Metadata:        meta,
	}, nil
}

// VerifyProof implements provider.Provider. The public witness is rebuilt
// from the proof's canonical inputs zipped against the circuit's sorted
// public input names.
func (p *Provider) VerifyProof(ctx context.Context, sp *proof.SingleProof) (bool, error) {
	if err := p.EnsureReady(); err != nil {
		return false, err
	}
	if sp == nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  proof.SystemGroth16,
			Message: "proof is nil",
		}
	}
	if sp.Metadata.System != proof.SystemGroth16 {
		return false, &proof.CompositionError{
			Code:    proof.CodeSystemMismatch,
			System:  proof.SystemGroth16,
			ProofID: sp.ID,
			Message: fmt.Sprintf("proof targets system %q", sp.Metadata.System),
		}
	}
	if sp.Metadata.Expired(time.Now()) {
		return false, &proof.CompositionError{
			Code:    proof.CodeProofExpired,
			System:  proof.SystemGroth16,
			ProofID: sp.ID,
			Message: "proof has expired",
		}
	}
	if err := ctx.Err(); err != nil {
		return false, proof.NewTimeoutError("verify proof on "+p.Info().ID, err)
	}
	start := time.Now()
	valid, err := p.verify(sp)
	p.RecordVerification(time.Since(start), valid && err == nil)
	return valid, err
}

func (p *Provider) verify(sp *proof.SingleProof) (bool, error) {
	raw, err := proof.DecodeProofBytes(sp.Proof)
	if err != nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  proof.SystemGroth16,
			ProofID: sp.ID,
			Message: "proof payload is not canonical hex",
			Cause:   err,
		}
	}
	proofObj := backend.NewProof(ecc.BN254)
	if _, err := proofObj.ReadFrom(bytes.NewReader(raw)); err != nil {
		return false, nil
	}
	entry, err := p.ensureSetup(sp.Metadata.CircuitID)
	if err != nil {
		return false, err
	}
	circuit, _ := p.CircuitByID(sp.Metadata.CircuitID)
	publicMap, err := publicInputMap(circuit.PublicNames, sp.PublicInputs)
	if err != nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			ProofID: sp.ID,
			Message: "reconstruct public inputs",
			Cause:   err,
		}
	}
	def, _ := p.definition(sp.Metadata.CircuitID)
	assignment, err := def.Assign(nil, publicMap)
	if err != nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  proof.SystemGroth16,
			ProofID: sp.ID,
			Message: "rebuild public witness",
			Cause:   err,
		}
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}
	if err := backend.Verify(proofObj, entry.vk, w); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyBatch implements provider.Provider, preserving input order.
func (p *Provider) VerifyBatch(ctx context.Context, proofs []*proof.SingleProof) ([]bool, error) {
	if err := p.EnsureReady(); err != nil {
		return nil, err
	}
	results := make([]bool, len(proofs))
	for i, sp := range proofs {
		if err := ctx.Err(); err != nil {
			return nil, proof.NewTimeoutError("verify batch on "+p.Info().ID, err)
		}
		valid, err := p.VerifyProof(ctx, sp)
		if err != nil {
			results[i] = false
			continue
		}
		results[i] = valid
	}
	return results, nil
}

// publicInputMap zips the circuit's public input names, in their canonical
// sorted order, against the proof's hex values.
func publicInputMap(names, values []string) (map[string]any, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("expected %d public inputs, got %d", len(names), len(values))
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	m := make(map[string]any, len(sorted))
	for i, name := range sorted {
		m[name] = values[i]
	}
	return m, nil
}

// fieldValue parses one named input into a field element.
func fieldValue(inputs map[string]any, name string) (*big.Int, error) {
	v, ok := inputs[name]
	if !ok {
		return nil, fmt.Errorf("input %q is missing", name)
	}
	encoded, err := proof.CanonicalHex(v)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", name, err)
	}
	return proof.ParseFieldElement(encoded)
}

// PreimageCircuitID names the built-in MiMC preimage circuit.
const PreimageCircuitID = "mimc-preimage"

// preimageCircuit proves knowledge of a preimage for a public MiMC hash.
type preimageCircuit struct {
	Preimage frontend.Variable
	Hash     frontend.Variable `gnark:",public"`
}

func (c *preimageCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Preimage)
	api.AssertIsEqual(c.Hash, hasher.Sum())
	return nil
}

// PreimageDefinition is the Definition for the built-in MiMC preimage
// circuit. Private input: preimage. Public input: hash.
type PreimageDefinition struct{}

// Template implements Definition.
func (PreimageDefinition) Template() frontend.Circuit { return &preimageCircuit{} }

// Assign implements Definition.
func (PreimageDefinition) Assign(private, public map[string]any) (frontend.Circuit, error) {
	hash, err := fieldValue(public, "hash")
	if err != nil {
		return nil, err
	}
	assignment := &preimageCircuit{Hash: hash}
	if private != nil {
		preimage, err := fieldValue(private, "preimage")
		if err != nil {
			return nil, err
		}
		assignment.Preimage = preimage
	}
	return assignment, nil
}
