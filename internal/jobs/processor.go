package jobs

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/logger"
	"SIP-Compose/pkg/proof"
)

// Generator is the composer capability the processor drives. Expected
// failures arrive inside the structured result.
type Generator interface {
	GenerateProof(ctx context.Context, req proof.GenerationRequest) proof.GenerationResult
}

// Processor consumes job ids from the queue, claims them in the store and
// runs the generation.
type Processor struct {
	generator   Generator
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption tunes a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger overrides the debug logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor builds a Processor.
func NewProcessor(generator Generator, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		generator:   generator,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start runs the consume loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "no job consumer configured")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.generator == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor is not initialized")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("skipping job", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("failed to claim job", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	result := p.generator.GenerateProof(ctx, job.Request())
	if !result.Success {
		return p.handleFailure(ctx, job, result)
	}

	if err := p.store.MarkSucceeded(ctx, job.ID, result); err != nil {
		logger.L().Error("failed to record job result", slog.Any("error", err), slog.String("job_id", job.ID))
		if storeErr := p.store.MarkFailed(ctx, job.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("failed to write failure state", slog.Any("error", storeErr), slog.String("job_id", job.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("requeue job %s after bookkeeping failure", job.ID))
		}
		return nil
	}
	logger.Journal().Info("job succeeded",
		slog.String("job_id", job.ID),
		slog.String("circuit", job.CircuitID),
		slog.String("provider", result.ProviderID),
		slog.Int64("time_ms", result.TimeMS),
	)
	return nil
}

// handleFailure records the structured failure and requeues when the error
// code is retryable and attempts remain.
func (p *Processor) handleFailure(ctx context.Context, job *GenerationJob, result proof.GenerationResult) error {
	code := result.ErrorCode
	if code == "" || code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.AttributesOf(code).Retryable
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, result.Error, terminal); storeErr != nil {
		logger.L().Error("failed to mark job failed", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Journal().Warn("job failed",
		slog.String("job_id", job.ID),
		slog.String("circuit", job.CircuitID),
		slog.Bool("terminal", terminal),
		slog.String("error", result.Error),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("requeue job %s", job.ID))
		}
		p.logDebug("job requeued", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}
