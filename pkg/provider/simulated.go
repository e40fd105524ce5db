package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SIP-Compose/pkg/proof"
)

// Simulated is an in-process provider standing in for an out-of-process
// proving toolchain. Proof bytes are derived deterministically from the
// system tag, circuit id and canonical public inputs, so VerifyProof can
// recompute and compare them without keeping per-proof state.
type Simulated struct {
	Base
	systemVersion string
	proofSize     int
	latency       time.Duration
}

// SimulatedOption tweaks a simulated provider.
type SimulatedOption func(*Simulated)

// WithLatency makes every generation take at least d.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.latency = d }
}

// WithSystemVersion overrides the advertised toolchain version.
func WithSystemVersion(v string) SimulatedOption {
	return func(s *Simulated) { s.systemVersion = v }
}

// NewSimulated builds a simulated provider for the given system.
func NewSimulated(system proof.System, cfg Config, opts ...SimulatedOption) (*Simulated, error) {
	if !proof.IsValidSystem(system) {
		return nil, &proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  system,
			Message: fmt.Sprintf("unknown proof system %q", system),
		}
	}
	if cfg.ID == "" {
		cfg.ID = string(system) + "-simulated"
	}
	if cfg.Name == "" {
		cfg.Name = string(system) + " simulated provider"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if len(cfg.Platforms) == 0 {
		cfg.Platforms = []string{"linux", "darwin"}
	}
	info := Info{ID: cfg.ID, Name: cfg.Name, System: system, Version: cfg.Version}
	caps := Capabilities{
		BatchVerification: cfg.BatchVerification,
		Recursion:         cfg.EnableRecursion,
		Aggregation:       cfg.Aggregation,
		Platforms:         cfg.Platforms,
	}
	s := &Simulated{
		Base:          NewBase(info, caps, cfg),
		systemVersion: defaultSystemVersion(system),
		proofSize:     defaultProofSize(system),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewNoir returns a simulated Noir backend.
func NewNoir(cfg Config, opts ...SimulatedOption) (*Simulated, error) {
	return NewSimulated(proof.SystemNoir, cfg, opts...)
}

// NewHalo2 returns a simulated Halo2 backend.
func NewHalo2(cfg Config, opts ...SimulatedOption) (*Simulated, error) {
	return NewSimulated(proof.SystemHalo2, cfg, opts...)
}

// NewKimchi returns a simulated Kimchi backend.
func NewKimchi(cfg Config, opts ...SimulatedOption) (*Simulated, error) {
	return NewSimulated(proof.SystemKimchi, cfg, opts...)
}

func defaultSystemVersion(system proof.System) string {
	switch system {
	case proof.SystemNoir:
		return "0.36.0"
	case proof.SystemHalo2:
		return "0.3.1"
	case proof.SystemKimchi:
		return "0.2.0"
	default:
		return "1.0.0"
	}
}

func defaultProofSize(system proof.System) int {
	switch system {
	case proof.SystemNoir:
		return 2144
	case proof.SystemHalo2:
		return 1632
	case proof.SystemKimchi:
		return 3040
	default:
		return 256
	}
}

// GenerateProof implements Provider.
func (s *Simulated) GenerateProof(ctx context.Context, req proof.GenerationRequest) (*proof.SingleProof, error) {
	if err := s.EnsureReady(); err != nil {
		return nil, err
	}
	if !s.HasCircuit(req.CircuitID) {
		return nil, CircuitNotFoundError(s.info.System, req.CircuitID)
	}
	s.StartJob()
	start := time.Now()
	p, err := s.generate(ctx, req)
	s.RecordGeneration(time.Since(start), err)
	s.FinishJob(err)
	return p, err
}

func (s *Simulated) generate(ctx context.Context, req proof.GenerationRequest) (*proof.SingleProof, error) {
	publicInputs, err := proof.CanonicalInputs(req.PublicInputs)
	if err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  s.info.System,
			Message: "public inputs are not canonicalizable",
			Cause:   err,
		}
	}
	if _, err := proof.CanonicalInputs(req.PrivateInputs); err != nil {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidInput,
			System:  s.info.System,
			Message: "private inputs are not canonicalizable",
			Cause:   err,
		}
	}
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, proof.NewTimeoutError("generate proof on "+s.info.ID, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, proof.NewTimeoutError("generate proof on "+s.info.ID, err)
	}

	circuit, _ := s.CircuitByID(req.CircuitID)
	raw := s.deriveProofBytes(req.CircuitID, publicInputs)
	meta := proof.Metadata{
		System:           s.info.System,
		SystemVersion:    s.systemVersion,
		CircuitID:        req.CircuitID,
		CircuitVersion:   circuit.Version,
		GeneratedAt:      time.Now().UnixMilli(),
		ProofSizeBytes:   len(raw),
		VerificationCost: int64(len(raw) / 32),
	}
	if s.cfg.DefaultExpiry > 0 {
		meta.ExpiresAt = time.Now().Add(s.cfg.DefaultExpiry).UnixMilli()
	}
	return &proof.SingleProof{
		ID:              uuid.NewString(),
		Proof:           proof.EncodeProofBytes(raw),
		PublicInputs:    publicInputs,
		VerificationKey: s.verificationKey(req.CircuitID),
		Metadata:        meta,
	}, nil
}

// deriveProofBytes expands a digest over the proving statement to the
// system's nominal proof size. Binding only public data keeps verification
// stateless.
func (s *Simulated) deriveProofBytes(circuitID string, publicInputs []string) []byte {
	h := sha256.New()
	h.Write([]byte(s.info.System))
	h.Write([]byte{0})
	h.Write([]byte(circuitID))
	for _, in := range publicInputs {
		h.Write([]byte{0})
		h.Write([]byte(in))
	}
	seed := h.Sum(nil)

	out := make([]byte, 0, s.proofSize)
	var counter [8]byte
	for i := uint64(0); len(out) < s.proofSize; i++ {
		binary.BigEndian.PutUint64(counter[:], i)
		block := sha256.Sum256(append(seed, counter[:]...))
		out = append(out, block[:]...)
	}
	return out[:s.proofSize]
}

func (s *Simulated) verificationKey(circuitID string) string {
	vk := sha256.Sum256([]byte("vk:" + string(s.info.System) + ":" + circuitID))
	return proof.EncodeProofBytes(vk[:])
}

// VerifyProof implements Provider.
func (s *Simulated) VerifyProof(ctx context.Context, p *proof.SingleProof) (bool, error) {
	if err := s.EnsureReady(); err != nil {
		return false, err
	}
	if p == nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  s.info.System,
			Message: "proof is nil",
		}
	}
	if err := ctx.Err(); err != nil {
		return false, proof.NewTimeoutError("verify proof on "+s.info.ID, err)
	}
	start := time.Now()
	valid, err := s.verify(p)
	s.RecordVerification(time.Since(start), valid && err == nil)
	return valid, err
}

func (s *Simulated) verify(p *proof.SingleProof) (bool, error) {
	if p.Metadata.System != s.info.System {
		return false, &proof.CompositionError{
			Code:    proof.CodeSystemMismatch,
			System:  s.info.System,
			ProofID: p.ID,
			Message: fmt.Sprintf("proof targets system %q", p.Metadata.System),
		}
	}
	if p.Metadata.Expired(time.Now()) {
		return false, &proof.CompositionError{
			Code:    proof.CodeProofExpired,
			System:  s.info.System,
			ProofID: p.ID,
			Message: "proof has expired",
		}
	}
	raw, err := proof.DecodeProofBytes(p.Proof)
	if err != nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  s.info.System,
			ProofID: p.ID,
			Message: "proof payload is not canonical hex",
			Cause:   err,
		}
	}
	expected := s.deriveProofBytes(p.Metadata.CircuitID, p.PublicInputs)
	return hmac.Equal(raw, expected), nil
}

// AggregateProofs implements Aggregator. The stand-in proof commits to every
// constituent's bytes; its public inputs are the union of constituent inputs.
func (s *Simulated) AggregateProofs(ctx context.Context, proofs []*proof.SingleProof) (*proof.SingleProof, error) {
	if err := s.EnsureReady(); err != nil {
		return nil, err
	}
	if !s.Capabilities().Aggregation {
		return nil, &proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  s.info.System,
			Message: "provider " + s.info.ID + " does not aggregate",
		}
	}
	if len(proofs) == 0 {
		return nil, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			System:  s.info.System,
			Message: "no proofs to aggregate",
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, proof.NewTimeoutError("aggregate on "+s.info.ID, err)
	}

	h := sha256.New()
	h.Write([]byte("aggregate:"))
	h.Write([]byte(s.info.System))
	var publicInputs []string
	for _, p := range proofs {
		if p == nil {
			return nil, &proof.CompositionError{
				Code:    proof.CodeInvalidProof,
				System:  s.info.System,
				Message: "nil proof in aggregation input",
			}
		}
		h.Write([]byte{0})
		h.Write([]byte(p.Proof))
		publicInputs = append(publicInputs, p.PublicInputs...)
	}
	raw := h.Sum(nil)
	return &proof.SingleProof{
		ID:           uuid.NewString(),
		Proof:        proof.EncodeProofBytes(raw),
		PublicInputs: publicInputs,
		Metadata: proof.Metadata{
			System:         s.info.System,
			SystemVersion:  s.systemVersion,
			CircuitID:      fmt.Sprintf("aggregate-%d", len(proofs)),
			CircuitVersion: "1",
			GeneratedAt:    time.Now().UnixMilli(),
			ProofSizeBytes: len(raw),
		},
	}, nil
}

// VerifyBatch implements Provider.
func (s *Simulated) VerifyBatch(ctx context.Context, proofs []*proof.SingleProof) ([]bool, error) {
	if err := s.EnsureReady(); err != nil {
		return nil, err
	}
	results := make([]bool, len(proofs))
	for i, p := range proofs {
		if err := ctx.Err(); err != nil {
			return nil, proof.NewTimeoutError("verify batch on "+s.info.ID, err)
		}
		valid, err := s.VerifyProof(ctx, p)
		if err != nil {
			// Structural rejections count as invalid, not as a batch
			// failure, so one bad proof cannot hide the others.
			results[i] = false
			continue
		}
		results[i] = valid
	}
	return results, nil
}
