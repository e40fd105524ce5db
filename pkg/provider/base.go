package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/proof"
)

// Config is the shared provider configuration.
type Config struct {
	ID      string
	Name    string
	Version string
	// EnableRecursion controls whether the recursion capability is
	// advertised at all.
	EnableRecursion   bool
	BatchVerification bool
	Aggregation       bool
	Platforms         []string
	// DefaultExpiry stamps generated proofs with an expiry when non-zero.
	DefaultExpiry time.Duration
}

// Base carries the circuit registry, lifecycle state and metrics accounting
// shared by every in-tree provider. Status lives in one mutex-guarded cell;
// callers only ever see copies.
type Base struct {
	info Info
	caps Capabilities
	cfg  Config

	mu          sync.Mutex
	state       State
	queueLength int
	lastError   string
	updatedAt   time.Time
	circuits    map[string]Circuit

	proofsGenerated      uint64
	proofsVerified       uint64
	generationFailures   uint64
	verificationFailures uint64
	generationTime       time.Duration
	verificationTime     time.Duration
}

func NewBase(info Info, caps Capabilities, cfg Config) Base {
	if !cfg.EnableRecursion {
		caps.Recursion = false
	}
	return Base{
		info:      info,
		caps:      caps,
		cfg:       cfg,
		state:     StateUninitialized,
		updatedAt: time.Now(),
		circuits:  make(map[string]Circuit),
	}
}

// Info implements Provider.
func (b *Base) Info() Info { return b.info }

// Capabilities implements Provider.
func (b *Base) Capabilities() Capabilities {
	caps := b.caps
	caps.Platforms = append([]string(nil), b.caps.Platforms...)
	return caps
}

// Status implements Provider.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:       b.state,
		QueueLength: b.queueLength,
		LastError:   b.lastError,
		UpdatedAt:   b.updatedAt.UnixMilli(),
	}
}

// Metrics implements Provider.
func (b *Base) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := Metrics{
		ProofsGenerated:      b.proofsGenerated,
		ProofsVerified:       b.proofsVerified,
		GenerationFailures:   b.generationFailures,
		VerificationFailures: b.verificationFailures,
	}
	if b.proofsGenerated > 0 {
		m.AvgGenerationTimeMS = float64(b.generationTime.Milliseconds()) / float64(b.proofsGenerated)
	}
	if b.proofsVerified > 0 {
		m.AvgVerificationTimeMS = float64(b.verificationTime.Milliseconds()) / float64(b.proofsVerified)
	}
	attempts := b.proofsGenerated + b.generationFailures
	if attempts > 0 {
		m.SuccessRate = float64(b.proofsGenerated) / float64(attempts)
	}
	return m
}

// Initialize implements Provider.
func (b *Base) Initialize(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateReady || b.state == StateBusy {
		return nil
	}
	b.state = StateReady
	b.lastError = ""
	b.updatedAt = time.Now()
	return nil
}

// Dispose implements Provider.
func (b *Base) Dispose(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateDisposed
	b.queueLength = 0
	b.updatedAt = time.Now()
	return nil
}

// WaitUntilReady implements Provider.
func (b *Base) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		if b.Status().Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return proof.NewTimeoutError("wait for provider "+b.info.ID, ctx.Err())
		case <-deadline.C:
			return proof.NewTimeoutError("wait for provider "+b.info.ID, nil)
		case <-tick.C:
		}
	}
}

// RegisterCircuit implements Provider.
func (b *Base) RegisterCircuit(circuit Circuit) error {
	if circuit.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "circuit id cannot be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuits[circuit.ID] = circuit
	return nil
}

// HasCircuit implements Provider.
func (b *Base) HasCircuit(circuitID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.circuits[circuitID]
	return ok
}

// AvailableCircuits implements Provider.
func (b *Base) AvailableCircuits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.circuits))
	for id := range b.circuits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadCircuitKeys implements Provider.
func (b *Base) LoadCircuitKeys(_ context.Context, circuitID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	circuit, ok := b.circuits[circuitID]
	if !ok {
		return CircuitNotFoundError(b.info.System, circuitID)
	}
	circuit.KeysLoaded = true
	b.circuits[circuitID] = circuit
	return nil
}

func (b *Base) CircuitByID(circuitID string) (Circuit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[circuitID]
	return c, ok
}

// EnsureReady gates generation and verification on lifecycle state.
func (b *Base) EnsureReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateReady, StateBusy:
		return nil
	case StateDisposed:
		return &proof.CompositionError{
			Code:    proof.CodeDisposed,
			System:  b.info.System,
			Message: "provider " + b.info.ID + " has been disposed",
		}
	default:
		return &proof.CompositionError{
			Code:    proof.CodeNotInitialized,
			System:  b.info.System,
			Message: "provider " + b.info.ID + " is not initialized",
		}
	}
}

func (b *Base) StartJob() {
	b.mu.Lock()
	b.queueLength++
	b.state = StateBusy
	b.updatedAt = time.Now()
	b.mu.Unlock()
}

func (b *Base) FinishJob(err error) {
	b.mu.Lock()
	if b.queueLength > 0 {
		b.queueLength--
	}
	if b.queueLength == 0 && b.state == StateBusy {
		b.state = StateReady
	}
	if err != nil {
		b.lastError = err.Error()
	}
	b.updatedAt = time.Now()
	b.mu.Unlock()
}

func (b *Base) RecordGeneration(elapsed time.Duration, err error) {
	b.mu.Lock()
	if err != nil {
		b.generationFailures++
	} else {
		b.proofsGenerated++
		b.generationTime += elapsed
	}
	b.mu.Unlock()
}

func (b *Base) RecordVerification(elapsed time.Duration, valid bool) {
	b.mu.Lock()
	b.proofsVerified++
	b.verificationTime += elapsed
	if !valid {
		b.verificationFailures++
	}
	b.mu.Unlock()
}

func CircuitNotFoundError(system proof.System, circuitID string) error {
	return &proof.CompositionError{
		Code:    proof.CodeCircuitNotFound,
		System:  system,
		Message: "circuit " + circuitID + " not found",
	}
}
