// Package provider defines the ComposableProofProvider contract the composer
// orchestrates, a base implementation handling circuits, lifecycle and
// metrics accounting, and simulated backends for the out-of-process proving
// toolchains.
package provider

import (
	"context"
	"slices"
	"time"

	"SIP-Compose/pkg/proof"
)

// Info contains descriptive metadata for a provider implementation.
type Info struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	System  proof.System `json:"system"`
	Version string       `json:"version"`
}

// Capability expresses optional features a provider may advertise.
type Capability string

const (
	CapabilityBatchVerification Capability = "batch_verification"
	CapabilityRecursion         Capability = "recursion"
	CapabilityAggregation       Capability = "aggregation"
)

// Capabilities describe what a provider can do. Recursion is only advertised
// when explicitly enabled in the provider configuration.
type Capabilities struct {
	BatchVerification bool     `json:"batch_verification"`
	Recursion         bool     `json:"recursion"`
	Aggregation       bool     `json:"aggregation"`
	Platforms         []string `json:"platforms"`
	MaxProofSizeBytes int      `json:"max_proof_size_bytes,omitempty"`
	MaxPublicInputs   int      `json:"max_public_inputs,omitempty"`
}

// List returns the advertised capabilities as tags.
func (c Capabilities) List() []Capability {
	var caps []Capability
	if c.BatchVerification {
		caps = append(caps, CapabilityBatchVerification)
	}
	if c.Recursion {
		caps = append(caps, CapabilityRecursion)
	}
	if c.Aggregation {
		caps = append(caps, CapabilityAggregation)
	}
	return caps
}

// State is the lifecycle position of a provider instance.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateBusy          State = "busy"
	StateDisposed      State = "disposed"
)

// Status is the mutable runtime state of a provider. All mutation flows
// through the provider's own synchronized cell; callers receive copies.
type Status struct {
	State       State  `json:"state"`
	QueueLength int    `json:"queue_length"`
	LastError   string `json:"last_error,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Ready reports whether the provider can accept work.
func (s Status) Ready() bool {
	return s.State == StateReady || s.State == StateBusy
}

// Metrics are the running counters a provider maintains.
type Metrics struct {
	ProofsGenerated       uint64  `json:"proofs_generated"`
	ProofsVerified        uint64  `json:"proofs_verified"`
	GenerationFailures    uint64  `json:"generation_failures"`
	VerificationFailures  uint64  `json:"verification_failures"`
	AvgGenerationTimeMS   float64 `json:"avg_generation_time_ms"`
	AvgVerificationTimeMS float64 `json:"avg_verification_time_ms"`
	SuccessRate           float64 `json:"success_rate"`
}

// Circuit is a named, versioned provable computation a provider can prove.
type Circuit struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	PublicNames []string `json:"public_names,omitempty"`
	KeysLoaded  bool     `json:"keys_loaded"`
}

// Provider is the contract every proving backend plugs into the composer
// with. Implementations must keep generation and verification usable from
// concurrent goroutines once initialized.
type Provider interface {
	// Info returns static identity metadata.
	Info() Info
	// Capabilities returns the advertised capability flags.
	Capabilities() Capabilities
	// Status returns a copy of the mutable runtime status.
	Status() Status
	// Metrics returns a copy of the running counters.
	Metrics() Metrics

	// Initialize prepares the provider; it is idempotent.
	Initialize(ctx context.Context) error
	// Dispose releases resources; it is idempotent.
	Dispose(ctx context.Context) error
	// WaitUntilReady blocks until the provider is ready or the timeout
	// elapses.
	WaitUntilReady(ctx context.Context, timeout time.Duration) error

	// RegisterCircuit makes a circuit available for proving.
	RegisterCircuit(circuit Circuit) error
	// HasCircuit reports whether the circuit id is registered.
	HasCircuit(circuitID string) bool
	// AvailableCircuits lists the registered circuit ids.
	AvailableCircuits() []string
	// LoadCircuitKeys loads or derives the proving material for a circuit.
	LoadCircuitKeys(ctx context.Context, circuitID string) error

	// GenerateProof produces a proof for a registered circuit. Public
	// input values of arbitrary type are canonicalized to hex.
	GenerateProof(ctx context.Context, req proof.GenerationRequest) (*proof.SingleProof, error)
	// VerifyProof checks a single proof, rejecting system mismatches,
	// malformed encodings and expired proofs.
	VerifyProof(ctx context.Context, p *proof.SingleProof) (bool, error)
	// VerifyBatch verifies each proof, preserving input order.
	VerifyBatch(ctx context.Context, proofs []*proof.SingleProof) ([]bool, error)
}

// Aggregator is an optional extension: providers advertising the aggregation
// capability fold several proofs into one stand-in proof in their own system.
type Aggregator interface {
	AggregateProofs(ctx context.Context, proofs []*proof.SingleProof) (*proof.SingleProof, error)
}

// Policy restricts which capabilities a registered provider may exercise.
type Policy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities" json:"allowed_capabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities" json:"denied_capabilities"`
}

// Merge returns a policy using values from other when not present.
func (p Policy) Merge(other Policy) Policy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// Validate ensures the provider's advertised capabilities satisfy the policy.
func (p Policy) Validate(caps Capabilities) error {
	advertised := caps.List()
	for _, denied := range p.DeniedCapabilities {
		if slices.Contains(advertised, denied) {
			return &proof.CompositionError{
				Code:    proof.CodeNotSupported,
				Message: "capability " + string(denied) + " is explicitly denied",
			}
		}
	}
	if len(p.AllowedCapabilities) == 0 {
		return nil
	}
	for _, cap := range advertised {
		if !slices.Contains(p.AllowedCapabilities, cap) {
			return &proof.CompositionError{
				Code:    proof.CodeNotSupported,
				Message: "capability " + string(cap) + " not permitted",
			}
		}
	}
	return nil
}
