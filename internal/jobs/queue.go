package jobs

import "context"

// Handler processes one job id taken from the queue.
type Handler func(ctx context.Context, jobID string) error

// Producer publishes job ids.
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer drains job ids with a pool of workers.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue combines both sides.
type Queue interface {
	Producer
	Consumer
}
