package jobs

import (
	"context"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/proof"
)

// Store persists generation job state.
type Store interface {
	Create(ctx context.Context, job *GenerationJob) error
	Get(ctx context.Context, id string) (*GenerationJob, error)
	// Claim transitions a pending or retryable failed job to running and
	// consumes one attempt. Completed and exhausted jobs are rejected with
	// their sentinel errors.
	Claim(ctx context.Context, id string) (*GenerationJob, error)
	MarkSucceeded(ctx context.Context, id string, result proof.GenerationResult) error
	// MarkFailed records the failure. Terminal failures become failed,
	// non-terminal ones return to pending awaiting a requeue.
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, limit int) ([]*GenerationJob, error)
	Stats(ctx context.Context) (JobStats, error)
	Close() error
}
