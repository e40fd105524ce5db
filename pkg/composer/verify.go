package composer

import (
	"context"
	"time"

	"SIP-Compose/pkg/proof"
)

// Verify checks a composed proof's constituents. With VerifyIndividual unset
// no per-item checks are requested and the report is trivially valid. Batch
// verification is used per system when requested and the provider supports
// it; everything else goes through the individual path. Results preserve
// constituent order.
func (c *Composer) Verify(ctx context.Context, req proof.VerificationRequest) proof.VerificationReport {
	started := time.Now()
	if req.Composed == nil || !req.VerifyIndividual {
		return proof.VerificationReport{
			Valid:       req.Composed != nil,
			Results:     []proof.ProofVerification{},
			TotalTimeMS: time.Since(started).Milliseconds(),
			Method:      proof.VerificationSkipped,
		}
	}

	proofs := req.Composed.Proofs
	results := make([]proof.ProofVerification, len(proofs))
	method := proof.VerificationIndividual

	if req.UseBatchVerification {
		method = proof.VerificationBatch
		c.verifyBatched(ctx, proofs, results)
	} else {
		// Walk constituents cheapest first so an invalid proof surfaces
		// early; results stay in constituent order.
		order := req.Composed.Hints.VerificationOrder
		if len(order) != len(proofs) {
			order = verificationOrder(proofs)
		}
		for _, idx := range order {
			results[idx] = c.verifyOne(ctx, proofs[idx])
		}
	}

	valid := true
	for _, r := range results {
		if !r.Valid {
			valid = false
			break
		}
	}
	c.record("verify", "", valid, started, "")
	return proof.VerificationReport{
		Valid:       valid,
		Results:     results,
		TotalTimeMS: time.Since(started).Milliseconds(),
		Method:      method,
	}
}

// verifyBatched groups constituents by system and routes each group through
// the provider's batch path when supported.
func (c *Composer) verifyBatched(ctx context.Context, proofs []*proof.SingleProof, results []proof.ProofVerification) {
	groups := make(map[proof.System][]int)
	for i, p := range proofs {
		if p == nil {
			results[i] = proof.ProofVerification{Valid: false, Error: "proof is nil"}
			continue
		}
		groups[p.Metadata.System] = append(groups[p.Metadata.System], i)
	}
	for system, indexes := range groups {
		prov, ok := c.ProviderForSystem(system)
		if !ok || !prov.Capabilities().BatchVerification {
			for _, idx := range indexes {
				results[idx] = c.verifyOne(ctx, proofs[idx])
			}
			continue
		}
		batch := make([]*proof.SingleProof, len(indexes))
		for i, idx := range indexes {
			batch[i] = proofs[idx]
		}
		groupStart := time.Now()
		valids, err := prov.VerifyBatch(ctx, batch)
		elapsed := time.Since(groupStart).Milliseconds()
		for i, idx := range indexes {
			result := proof.ProofVerification{
				ProofID: proofs[idx].ID,
				System:  system,
				TimeMS:  elapsed,
			}
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Valid = valids[i]
			}
			results[idx] = result
		}
	}
}

func (c *Composer) verifyOne(ctx context.Context, p *proof.SingleProof) proof.ProofVerification {
	started := time.Now()
	if p == nil {
		return proof.ProofVerification{Valid: false, Error: "proof is nil"}
	}
	result := proof.ProofVerification{
		ProofID: p.ID,
		System:  p.Metadata.System,
	}
	valid, err := c.VerifySingle(ctx, p)
	result.TimeMS = time.Since(started).Milliseconds()
	result.Valid = valid && err == nil
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// VerifySingle verifies one proof through the provider registered for its
// system. Unlike the structured-result operations it returns a typed
// ProviderNotFoundError when no provider matches.
func (c *Composer) VerifySingle(ctx context.Context, p *proof.SingleProof) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	if p == nil {
		return false, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			Message: "proof is nil",
		}
	}
	prov, ok := c.ProviderForSystem(p.Metadata.System)
	if !ok {
		return false, proof.NewProviderNotFoundError(p.Metadata.System)
	}
	return prov.VerifyProof(ctx, p)
}
