package jobs

import (
	"context"
	"errors"
	"testing"

	"SIP-Compose/pkg/proof"
)

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &GenerationJob{
		ID:         "j1",
		CircuitID:  "transfer-note",
		System:     proof.SystemNoir,
		Status:     StatusPending,
		MaxRetries: 2,
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, job); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	claimed, err := store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkFailed(ctx, "j1", CodeJobProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	pending, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pending.Status != StatusPending {
		t.Fatalf("non-terminal failure should return to pending, got %s", pending.Status)
	}
	if pending.LastError != "boom" || pending.ErrorCode != string(CodeJobProcessing) {
		t.Fatalf("failure not recorded: %+v", pending)
	}
	claimed, err = store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed.Attempts != 2 {
		t.Fatalf("expected attempt 2, got %d", claimed.Attempts)
	}
	if claimed.LastError != "" || claimed.ErrorCode != "" {
		t.Fatalf("claim did not reset the error fields: %+v", claimed)
	}

	if err := store.MarkFailed(ctx, "j1", CodeJobProcessing, "boom again", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobExhausted) {
		t.Fatalf("expected exhaustion after the retry budget, got %v", err)
	}
}

func TestMemoryStoreClaimCompleted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := &GenerationJob{ID: "j1", CircuitID: "c", Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "j1", proof.GenerationResult{Success: true, ProviderID: "noir-simulated"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected completed sentinel, got %v", err)
	}
	stored, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Result == nil || stored.Result.ProviderID != "noir-simulated" {
		t.Fatalf("result not persisted: %+v", stored.Result)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.MarkFailed(ctx, "missing", CodeJobProcessing, "x", true); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListAndStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		job := &GenerationJob{ID: id, CircuitID: "c", Status: StatusPending, MaxRetries: 3}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "b", proof.GenerationResult{Success: true}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := store.MarkFailed(ctx, "c", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	jobs, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := &GenerationJob{
		ID:           "j1",
		CircuitID:    "c",
		Status:       StatusPending,
		MaxRetries:   3,
		PublicInputs: map[string]any{"x": 1},
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.PublicInputs["x"] = 99
	got.Status = StatusFailed

	again, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.PublicInputs["x"] != 1 || again.Status != StatusPending {
		t.Fatalf("store state mutated through a returned copy: %+v", again)
	}
}
