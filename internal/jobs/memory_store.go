package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/proof"
)

// MemoryStore keeps job state in memory, mainly for tests and single-node
// deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*GenerationJob)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, job *GenerationJob) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job cannot be nil")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "job id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*GenerationJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim implements Store.
func (m *MemoryStore) Claim(_ context.Context, id string) (*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusSucceeded:
		return cloneJob(job), ErrJobCompleted
	case StatusRunning:
		return cloneJob(job), ErrJobConflict
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// MarkSucceeded implements Store.
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result proof.GenerationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusSucceeded
	job.Result = &result
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed implements Store. Non-terminal failures return to pending so a
// requeued id can be claimed again and pollers do not observe a transient
// failure as final.
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if terminal {
		job.Status = StatusFailed
	} else {
		job.Status = StatusPending
	}
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// List implements Store, returning the most recently updated jobs first.
func (m *MemoryStore) List(_ context.Context, limit int) ([]*GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]*GenerationJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		results = append(results, cloneJob(job))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(context.Context) (JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := JobStats{}
	for _, job := range m.jobs {
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if job.UpdatedAt > stats.NewestAt {
			stats.NewestAt = job.UpdatedAt
		}
		if stats.OldestAt == 0 || (job.UpdatedAt != 0 && job.UpdatedAt < stats.OldestAt) {
			stats.OldestAt = job.UpdatedAt
		}
	}
	return stats, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
