package jobs

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/logger"
	"SIP-Compose/pkg/proof"
)

// SubmitRequest describes one asynchronous generation request. A
// caller-supplied ID makes the submission idempotent.
type SubmitRequest struct {
	ID            string         `json:"id,omitempty"`
	CircuitID     string         `json:"circuit_id"`
	System        proof.System   `json:"system,omitempty"`
	PublicInputs  map[string]any `json:"public_inputs,omitempty"`
	PrivateInputs map[string]any `json:"private_inputs,omitempty"`
}

// Service creates and queries generation jobs.
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService builds the job service.
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit validates, persists and enqueues a generation job. Resubmitting an
// existing id returns the stored job unchanged.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*GenerationJob, error) {
	if strings.TrimSpace(req.CircuitID) == "" {
		return nil, xerrors.New(CodeJobValidation, "circuit id cannot be empty")
	}
	if req.System != "" && !proof.IsValidSystem(req.System) {
		return nil, xerrors.New(CodeJobValidation, "unknown proof system "+string(req.System))
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job service is not initialized")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		job, err := s.store.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	job := &GenerationJob{
		ID:            jobID,
		CircuitID:     req.CircuitID,
		System:        req.System,
		PublicInputs:  cloneInputs(req.PublicInputs),
		PrivateInputs: cloneInputs(req.PrivateInputs),
		Status:        StatusPending,
		Attempts:      0,
		MaxRetries:    s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			existing, getErr := s.store.Get(ctx, jobID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrJobNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("failed to enqueue job", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "publish job to queue")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Journal().Info("job enqueued",
		slog.String("job_id", jobID),
		slog.String("circuit", job.CircuitID),
		slog.String("system", string(job.System)),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get returns the stored state of one job.
func (s *Service) Get(ctx context.Context, id string) (*GenerationJob, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialized")
	}
	return s.store.Get(ctx, id)
}

// List returns the most recently updated jobs.
func (s *Service) List(ctx context.Context, limit int) ([]*GenerationJob, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialized")
	}
	return s.store.List(ctx, limit)
}

// Stats returns job counts by status.
func (s *Service) Stats(ctx context.Context) (JobStats, error) {
	if s.store == nil {
		return JobStats{}, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialized")
	}
	return s.store.Stats(ctx)
}

// WaitUntilCompleted polls the job until it reaches a terminal state.
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*GenerationJob, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the store and producer.
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
