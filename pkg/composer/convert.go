package composer

import (
	"context"
	"fmt"

	"SIP-Compose/pkg/proof"
)

// Convert re-encodes a proof for a target system. Same-system conversion is
// trivial; any cross-system target fails with "not supported" since true
// proof translation between systems has no generic algorithm.
func (c *Composer) Convert(_ context.Context, req proof.ConversionRequest) proof.ConversionResult {
	if err := c.guard(); err != nil {
		return failedConversion(err)
	}
	if req.Proof == nil {
		return failedConversion(&proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			Message: "proof is nil",
		})
	}
	if !proof.IsValidSystem(req.TargetSystem) {
		return failedConversion(&proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  req.TargetSystem,
			Message: fmt.Sprintf("unknown proof system %q", req.TargetSystem),
		})
	}
	source := req.Proof.Metadata.System
	if source != req.TargetSystem {
		return failedConversion(&proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  source,
			ProofID: req.Proof.ID,
			Message: fmt.Sprintf("conversion from %q to %q is not supported", source, req.TargetSystem),
		})
	}
	converted := req.Proof.Clone()
	if !req.PreserveMetadata {
		converted.Conversion = nil
		converted.Annotations = nil
	}
	return proof.ConversionResult{Success: true, Proof: converted}
}

func failedConversion(err error) proof.ConversionResult {
	return proof.ConversionResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: errorCode(err),
	}
}

// AreSystemsCompatible reports whether proofs from two systems can be
// converted into each other. Only same-system pairs are compatible.
func (c *Composer) AreSystemsCompatible(a, b proof.System) bool {
	return proof.IsValidSystem(a) && a == b
}

// CompatibilityMatrix returns the full pairwise compatibility table.
func (c *Composer) CompatibilityMatrix() map[proof.System]map[proof.System]bool {
	systems := proof.Systems()
	matrix := make(map[proof.System]map[proof.System]bool, len(systems))
	for _, a := range systems {
		row := make(map[proof.System]bool, len(systems))
		for _, b := range systems {
			row[b] = a == b
		}
		matrix[a] = row
	}
	return matrix
}
