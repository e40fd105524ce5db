// Package jobs is the durable asynchronous proof-generation pipeline: jobs
// are persisted in a Store, their ids travel through a Queue, and a Processor
// claims them and drives the composer.
package jobs

import (
	stdErrors "errors"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/proof"
)

// Status is the lifecycle position of a generation job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsValidStatus reports whether the status is a supported enum value.
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// GenerationJob is one queued proof-generation request.
type GenerationJob struct {
	ID            string                  `json:"id"`
	CircuitID     string                  `json:"circuit_id"`
	System        proof.System            `json:"system,omitempty"`
	PublicInputs  map[string]any          `json:"public_inputs,omitempty"`
	PrivateInputs map[string]any          `json:"private_inputs,omitempty"`
	Status        Status                  `json:"status"`
	Attempts      int                     `json:"attempts"`
	MaxRetries    int                     `json:"max_retries"`
	LastError     string                  `json:"last_error,omitempty"`
	ErrorCode     string                  `json:"error_code,omitempty"`
	Result        *proof.GenerationResult `json:"result,omitempty"`
	CreatedAt     int64                   `json:"created_at"`
	UpdatedAt     int64                   `json:"updated_at"`
}

// Request converts the job into the composer's generation request shape.
func (j *GenerationJob) Request() proof.GenerationRequest {
	return proof.GenerationRequest{
		CircuitID:     j.CircuitID,
		System:        j.System,
		PublicInputs:  cloneInputs(j.PublicInputs),
		PrivateInputs: cloneInputs(j.PrivateInputs),
	}
}

// JobStats aggregates job counts by status.
type JobStats struct {
	Total     int   `json:"total"`
	Pending   int   `json:"pending"`
	Running   int   `json:"running"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	OldestAt  int64 `json:"oldest_updated_at"`
	NewestAt  int64 `json:"newest_updated_at"`
}

const (
	CodeJobNotFound   xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted  xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "JOB_PROCESSING_FAILED"
)

var (
	// ErrJobNotFound indicates the referenced job does not exist.
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict indicates the job cannot transition from its current
	// state.
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted indicates the job has already succeeded.
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted indicates the job's attempt budget is spent.
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsJobError reports whether err is the sentinel for the given code.
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch target {
	case CodeJobNotFound:
		return stdErrors.Is(err, ErrJobNotFound)
	case CodeJobConflict:
		return stdErrors.Is(err, ErrJobConflict)
	case CodeJobCompleted:
		return stdErrors.Is(err, ErrJobCompleted)
	case CodeJobExhausted:
		return stdErrors.Is(err, ErrJobExhausted)
	default:
		return false
	}
}

func cloneInputs(inputs map[string]any) map[string]any {
	if inputs == nil {
		return nil
	}
	cloned := make(map[string]any, len(inputs))
	for key, value := range inputs {
		cloned[key] = value
	}
	return cloned
}

func cloneJob(job *GenerationJob) *GenerationJob {
	clone := *job
	if job.Result != nil {
		resultCopy := *job.Result
		clone.Result = &resultCopy
	}
	clone.PublicInputs = cloneInputs(job.PublicInputs)
	clone.PrivateInputs = cloneInputs(job.PrivateInputs)
	return &clone
}
