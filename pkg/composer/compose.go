package composer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

// Compose bundles already-generated proofs into one logical unit. Input is
// validated before any work happens; cancellation is honored at entry and at
// every phase boundary. The strategy governs bookkeeping and ordering only.
func (c *Composer) Compose(ctx context.Context, req proof.CompositionRequest) proof.CompositionResult {
	started := time.Now()
	if err := c.guard(); err != nil {
		return failedComposition(started, err)
	}
	if err := ctx.Err(); err != nil {
		return failedComposition(started, proof.NewTimeoutError("compose", err))
	}
	if len(req.Proofs) == 0 {
		err := &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			Message: "cannot compose an empty proof list",
		}
		c.record("compose", "", false, started, err.Code)
		return failedComposition(started, err)
	}
	if len(req.Proofs) > c.cfg.MaxProofs {
		err := &proof.CompositionError{
			Code:    proof.CodeTooManyProofs,
			Message: fmt.Sprintf("%d proofs exceed the configured maximum of %d", len(req.Proofs), c.cfg.MaxProofs),
		}
		c.record("compose", "", false, started, err.Code)
		return failedComposition(started, err)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = c.cfg.Strategy
	}
	if !proof.IsValidStrategy(strategy) {
		err := &proof.CompositionError{
			Code:    proof.CodeNotSupported,
			Message: fmt.Sprintf("unknown composition strategy %q", strategy),
		}
		c.record("compose", "", false, started, err.Code)
		return failedComposition(started, err)
	}

	compositionID := uuid.NewString()
	c.emit(proof.NewEvent(proof.EventStarted, compositionID))

	// Phase 1: structural validation.
	total := len(req.Proofs)
	proofs := make([]*proof.SingleProof, 0, total)
	for i, p := range req.Proofs {
		if p == nil || p.Proof == "" {
			err := &proof.CompositionError{
				Code:    proof.CodeInvalidProof,
				Message: fmt.Sprintf("proof at index %d is empty", i),
			}
			return c.failComposition(compositionID, started, err)
		}
		if _, err := proof.DecodeProofBytes(p.Proof); err != nil {
			return c.failComposition(compositionID, started, &proof.CompositionError{
				Code:    proof.CodeInvalidProof,
				ProofID: p.ID,
				System:  p.Metadata.System,
				Message: "proof payload is not canonical hex",
				Cause:   err,
			})
		}
		proofs = append(proofs, p.Clone())
		c.emitProgress(compositionID, "validate", float64(i+1)/float64(total)/2)
	}
	if err := ctx.Err(); err != nil {
		return c.failComposition(compositionID, started, proof.NewTimeoutError("compose", err))
	}

	// Phase 2: assemble metadata and verification hints.
	composed := &proof.ComposedProof{
		ID:       compositionID,
		Proofs:   proofs,
		Strategy: strategy,
		Metadata: proof.CompositionMetadata{
			ProofCount: len(proofs),
			Systems:    proof.DistinctSystems(proofs),
			Success:    true,
			ComposedAt: time.Now().UnixMilli(),
		},
		Hints: proof.VerificationHints{
			VerificationOrder: verificationOrder(proofs),
		},
	}
	c.emitProgress(compositionID, "assemble", 1)
	if err := ctx.Err(); err != nil {
		return c.failComposition(compositionID, started, proof.NewTimeoutError("compose", err))
	}

	completed := proof.NewEvent(proof.EventCompleted, compositionID)
	completed.ProofCount = len(proofs)
	c.emit(completed)
	c.record("compose", "", true, started, "")
	return proof.CompositionResult{
		Success:  true,
		Composed: composed,
		TimeMS:   time.Since(started).Milliseconds(),
	}
}

func (c *Composer) emitProgress(compositionID, stage string, progress float64) {
	event := proof.NewEvent(proof.EventProgress, compositionID)
	event.Stage = stage
	event.Progress = progress
	c.emit(event)
}

func (c *Composer) failComposition(compositionID string, started time.Time, err error) proof.CompositionResult {
	event := proof.NewEvent(proof.EventFailed, compositionID)
	event.Error = err.Error()
	c.emit(event)
	c.record("compose", "", false, started, errorCode(err))
	return failedComposition(started, err)
}

func failedComposition(started time.Time, err error) proof.CompositionResult {
	return proof.CompositionResult{
		Success:   false,
		TimeMS:    time.Since(started).Milliseconds(),
		Error:     err.Error(),
		ErrorCode: errorCode(err),
	}
}

// verificationOrder ranks constituent indexes cheapest first so verification
// can fail fast.
func verificationOrder(proofs []*proof.SingleProof) []int {
	order := make([]int, len(proofs))
	for i := range order {
		order[i] = i
	}
	cost := func(p *proof.SingleProof) int64 {
		if p.Metadata.VerificationCost > 0 {
			return p.Metadata.VerificationCost
		}
		return int64(p.Metadata.ProofSizeBytes)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return cost(proofs[order[i]]) < cost(proofs[order[j]])
	})
	return order
}

// Aggregate produces a single stand-in proof in the target system. With
// VerifyFirst set, every input proof is verified before aggregation.
func (c *Composer) Aggregate(ctx context.Context, req proof.AggregationRequest) proof.AggregationResult {
	started := time.Now()
	if err := c.guard(); err != nil {
		return failedAggregation(started, err)
	}
	if len(req.Proofs) == 0 {
		return failedAggregation(started, &proof.CompositionError{
			Code:    proof.CodeInvalidProof,
			Message: "cannot aggregate an empty proof list",
		})
	}
	prov, ok := c.ProviderForSystem(req.TargetSystem)
	if !ok {
		err := proof.NewProviderNotFoundError(req.TargetSystem)
		c.record("aggregate", req.TargetSystem, false, started, err.Code)
		return failedAggregation(started, err)
	}

	if req.VerifyFirst {
		for _, p := range req.Proofs {
			valid, err := c.VerifySingle(ctx, p)
			if err != nil || !valid {
				failure := &proof.CompositionError{
					Code:    proof.CodeVerificationFailed,
					System:  req.TargetSystem,
					Message: "an input proof failed verification",
					Cause:   err,
				}
				if p != nil {
					failure.ProofID = p.ID
				}
				c.record("aggregate", req.TargetSystem, false, started, failure.Code)
				return failedAggregation(started, failure)
			}
		}
	}

	agg, ok := prov.(provider.Aggregator)
	if !ok || !prov.Capabilities().Aggregation {
		err := &proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  req.TargetSystem,
			Message: fmt.Sprintf("provider %s does not aggregate", prov.Info().ID),
		}
		c.record("aggregate", req.TargetSystem, false, started, err.Code)
		return failedAggregation(started, err)
	}
	p, err := agg.AggregateProofs(ctx, req.Proofs)
	if err != nil {
		c.record("aggregate", req.TargetSystem, false, started, errorCode(err))
		return failedAggregation(started, err)
	}
	c.record("aggregate", req.TargetSystem, true, started, "")
	return proof.AggregationResult{
		Success: true,
		Proof:   p,
		TimeMS:  time.Since(started).Milliseconds(),
	}
}

func failedAggregation(started time.Time, err error) proof.AggregationResult {
	return proof.AggregationResult{
		Success:   false,
		TimeMS:    time.Since(started).Milliseconds(),
		Error:     err.Error(),
		ErrorCode: errorCode(err),
	}
}
