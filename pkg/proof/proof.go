// Package proof defines the canonical SIP proof data model shared by the
// composer, the per-system converters and the proof providers: proof systems,
// single and composed proofs, native proof variants, composition strategies
// and the structured results returned by every lifecycle operation.
package proof

import (
	"time"

	xerrors "SIP-Compose/internal/errors"
)

// System identifies a proving toolchain.
type System string

const (
	SystemNoir    System = "noir"
	SystemHalo2   System = "halo2"
	SystemKimchi  System = "kimchi"
	SystemGroth16 System = "groth16"
	SystemPlonk   System = "plonk"
)

// Systems returns every supported proof system tag.
func Systems() []System {
	return []System{SystemNoir, SystemHalo2, SystemKimchi, SystemGroth16, SystemPlonk}
}

// IsValidSystem reports whether the tag belongs to the closed system enum.
func IsValidSystem(s System) bool {
	switch s {
	case SystemNoir, SystemHalo2, SystemKimchi, SystemGroth16, SystemPlonk:
		return true
	default:
		return false
	}
}

// Metadata carries provenance and cost information for a single proof.
type Metadata struct {
	System           System `json:"system"`
	SystemVersion    string `json:"system_version"`
	CircuitID        string `json:"circuit_id"`
	CircuitVersion   string `json:"circuit_version"`
	GeneratedAt      int64  `json:"generated_at"`
	ProofSizeBytes   int    `json:"proof_size_bytes"`
	VerificationCost int64  `json:"verification_cost,omitempty"`
	ExpiresAt        int64  `json:"expires_at,omitempty"`
}

// Expired reports whether the proof carries an expiry in the past.
func (m Metadata) Expired(now time.Time) bool {
	return m.ExpiresAt > 0 && m.ExpiresAt < now.UnixMilli()
}

// SingleProof is the canonical SIP wire representation of one proof.
// Proof bytes and public inputs are 0x-prefixed hex. Instances are treated
// as immutable once created; Clone before mutating.
type SingleProof struct {
	ID              string            `json:"id"`
	Proof           string            `json:"proof"`
	PublicInputs    []string          `json:"public_inputs"`
	VerificationKey string            `json:"verification_key,omitempty"`
	Metadata        Metadata          `json:"metadata"`
	Conversion      *ConversionStamp  `json:"conversion,omitempty"`
	Annotations     map[string]string `json:"annotations,omitempty"`
}

// ConversionStamp records how a SIP proof was produced from a native proof.
type ConversionStamp struct {
	SourceSystem     System `json:"source_system"`
	TargetSystem     System `json:"target_system"`
	ConverterVersion string `json:"converter_version"`
	ConvertedAt      int64  `json:"converted_at"`
	NativeRef        string `json:"native_ref,omitempty"`
}

// Clone returns a deep copy of the proof.
func (p *SingleProof) Clone() *SingleProof {
	if p == nil {
		return nil
	}
	clone := *p
	clone.PublicInputs = append([]string(nil), p.PublicInputs...)
	if p.Conversion != nil {
		stamp := *p.Conversion
		clone.Conversion = &stamp
	}
	if p.Annotations != nil {
		clone.Annotations = make(map[string]string, len(p.Annotations))
		for k, v := range p.Annotations {
			clone.Annotations[k] = v
		}
	}
	return &clone
}

// Strategy selects how the composer bundles proofs. Strategies govern
// dispatch order and grouping metadata only; they do not alter the
// cryptographic content of the constituent proofs.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyRecursive  Strategy = "recursive"
	StrategyBatch      Strategy = "batch"
)

// IsValidStrategy reports whether the strategy is a known enum value.
func IsValidStrategy(s Strategy) bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyRecursive, StrategyBatch:
		return true
	default:
		return false
	}
}

// CompositionMetadata summarises a composed proof.
type CompositionMetadata struct {
	ProofCount int      `json:"proof_count"`
	Systems    []System `json:"systems"`
	Success    bool     `json:"success"`
	ComposedAt int64    `json:"composed_at"`
}

// VerificationHints tell verifiers how to check a composed proof efficiently.
type VerificationHints struct {
	// VerificationOrder indexes into Proofs, cheapest constituent first,
	// so verification can fail fast.
	VerificationOrder []int `json:"verification_order"`
}

// ComposedProof bundles already-generated proofs into one logical unit.
// Composed proofs are derived by the composer, never hand-constructed, and
// carry no soundness claim beyond their constituents.
type ComposedProof struct {
	ID       string              `json:"id"`
	Proofs   []*SingleProof      `json:"proofs"`
	Strategy Strategy            `json:"strategy"`
	Metadata CompositionMetadata `json:"composition_metadata"`
	Hints    VerificationHints   `json:"verification_hints"`
}

// DistinctSystems returns the ordered distinct set of constituent systems.
func DistinctSystems(proofs []*SingleProof) []System {
	seen := make(map[System]struct{}, len(proofs))
	systems := make([]System, 0, len(proofs))
	for _, p := range proofs {
		if p == nil {
			continue
		}
		if _, ok := seen[p.Metadata.System]; ok {
			continue
		}
		seen[p.Metadata.System] = struct{}{}
		systems = append(systems, p.Metadata.System)
	}
	return systems
}

// CompositionConfig tunes the composer.
type CompositionConfig struct {
	Strategy                 Strategy      `json:"strategy"`
	MaxProofs                int           `json:"max_proofs"`
	Timeout                  time.Duration `json:"timeout_ms"`
	EnableParallelGeneration bool          `json:"enable_parallel_generation"`
	MaxParallelWorkers       int           `json:"max_parallel_workers"`
	EnableCaching            bool          `json:"enable_caching"`
	CacheTTL                 time.Duration `json:"cache_ttl_ms"`
	EnableRecursive          bool          `json:"enable_recursive"`
	MaxRecursionDepth        int           `json:"max_recursion_depth"`
}

// DefaultCompositionConfig returns the composer defaults.
func DefaultCompositionConfig() CompositionConfig {
	return CompositionConfig{
		Strategy:                 StrategySequential,
		MaxProofs:                16,
		Timeout:                  60 * time.Second,
		EnableParallelGeneration: true,
		MaxParallelWorkers:       4,
		EnableCaching:            true,
		CacheTTL:                 5 * time.Minute,
		EnableRecursive:          false,
		MaxRecursionDepth:        2,
	}
}

// Normalize clamps the configuration to its invariants.
func (c CompositionConfig) Normalize() CompositionConfig {
	if !IsValidStrategy(c.Strategy) {
		c.Strategy = StrategySequential
	}
	if c.MaxProofs <= 0 {
		c.MaxProofs = 16
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxParallelWorkers < 1 {
		c.MaxParallelWorkers = 1
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.MaxRecursionDepth < 1 {
		c.MaxRecursionDepth = 1
	}
	return c
}

// BackoffPolicy controls the delay between fallback retries.
type BackoffPolicy string

const (
	BackoffNone        BackoffPolicy = "none"
	BackoffFixed       BackoffPolicy = "fixed"
	BackoffExponential BackoffPolicy = "exponential"
)

// FallbackConfig declares the ordered backup systems tried after the primary
// provider fails. The chain is always walked sequentially.
type FallbackConfig struct {
	Primary    System        `json:"primary"`
	Chain      []System      `json:"chain"`
	MaxRetries int           `json:"max_retries"`
	Backoff    BackoffPolicy `json:"backoff"`
	BaseDelay  time.Duration `json:"base_delay_ms"`
}

// GenerationRequest asks a provider for one proof.
type GenerationRequest struct {
	CircuitID     string         `json:"circuit_id"`
	PrivateInputs map[string]any `json:"private_inputs"`
	PublicInputs  map[string]any `json:"public_inputs"`
	System        System         `json:"system,omitempty"`
	Timeout       time.Duration  `json:"timeout_ms,omitempty"`
}

// GenerationResult is the structured outcome of a generation attempt.
// Expected failures (timeout, unknown circuit, missing provider) are data,
// not panics.
type GenerationResult struct {
	Success    bool         `json:"success"`
	Proof      *SingleProof `json:"proof,omitempty"`
	TimeMS     int64        `json:"time_ms"`
	ProviderID string       `json:"provider_id,omitempty"`
	Error      string       `json:"error,omitempty"`
	ErrorCode  xerrors.Code `json:"error_code,omitempty"`
}

// CompositionRequest bundles proofs under one strategy.
type CompositionRequest struct {
	Proofs   []*SingleProof `json:"proofs"`
	Strategy Strategy       `json:"strategy"`
}

// CompositionResult is the structured outcome of a composition.
type CompositionResult struct {
	Success   bool           `json:"success"`
	Composed  *ComposedProof `json:"composed,omitempty"`
	TimeMS    int64          `json:"time_ms"`
	Error     string         `json:"error,omitempty"`
	ErrorCode xerrors.Code   `json:"error_code,omitempty"`
}

// AggregationRequest produces one stand-in proof in the target system.
type AggregationRequest struct {
	Proofs       []*SingleProof `json:"proofs"`
	TargetSystem System         `json:"target_system"`
	VerifyFirst  bool           `json:"verify_first"`
}

// AggregationResult is the structured outcome of an aggregation.
type AggregationResult struct {
	Success   bool         `json:"success"`
	Proof     *SingleProof `json:"proof,omitempty"`
	TimeMS    int64        `json:"time_ms"`
	Error     string       `json:"error,omitempty"`
	ErrorCode xerrors.Code `json:"error_code,omitempty"`
}

// VerificationRequest checks a composed proof.
type VerificationRequest struct {
	Composed             *ComposedProof `json:"composed"`
	UseBatchVerification bool           `json:"use_batch_verification"`
	VerifyIndividual     bool           `json:"verify_individual"`
}

// ProofVerification is the per-constituent outcome inside a report.
type ProofVerification struct {
	ProofID string `json:"proof_id"`
	System  System `json:"system"`
	Valid   bool   `json:"valid"`
	TimeMS  int64  `json:"time_ms"`
	Error   string `json:"error,omitempty"`
}

// VerificationMethod names how a composed proof was checked.
type VerificationMethod string

const (
	VerificationIndividual VerificationMethod = "individual"
	VerificationBatch      VerificationMethod = "batch"
	VerificationSkipped    VerificationMethod = "skipped"
)

// VerificationReport aggregates per-constituent verification outcomes.
type VerificationReport struct {
	Valid       bool                `json:"valid"`
	Results     []ProofVerification `json:"results"`
	TotalTimeMS int64               `json:"total_time_ms"`
	Method      VerificationMethod  `json:"method"`
}

// ConversionRequest re-encodes a proof for a target system.
type ConversionRequest struct {
	Proof            *SingleProof `json:"proof"`
	TargetSystem     System       `json:"target_system"`
	PreserveMetadata bool         `json:"preserve_metadata"`
}

// ConversionResult is the structured outcome of a conversion.
type ConversionResult struct {
	Success   bool         `json:"success"`
	Proof     *SingleProof `json:"proof,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorCode xerrors.Code `json:"error_code,omitempty"`
}
