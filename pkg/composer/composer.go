// Package composer orchestrates proof providers: registration, proof
// generation with caching and fallback, composition, aggregation,
// verification and format conversion.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"SIP-Compose/internal/cache"
	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/logger"
	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

// Registration records one provider attached to the composer. At most one
// registration exists per system unless an override replaces it.
type Registration struct {
	ID       string       `json:"id"`
	System   proof.System `json:"system"`
	Priority int          `json:"priority"`
	Enabled  bool         `json:"enabled"`

	provider provider.Provider
}

// Provider returns the registered provider instance.
func (r Registration) Provider() provider.Provider { return r.provider }

// RegisterOptions tune a provider registration.
type RegisterOptions struct {
	Priority int
	Disabled bool
	// Override replaces an existing registration for the same system
	// instead of failing.
	Override bool
	// Policy restricts the capabilities the provider may advertise.
	Policy provider.Policy
}

// Composer is the orchestration engine. All registry and status mutation is
// funneled through its mutex; providers guard their own cells.
type Composer struct {
	cfg proof.CompositionConfig

	mu            sync.Mutex
	registrations map[proof.System]*Registration
	listeners     map[int]proof.EventListener
	nextListener  int
	fallback      *proof.FallbackConfig
	telemetry     proof.TelemetryCollector
	disposed      bool

	workers workerPool

	cache  cache.Cache
	flight flightGroup

	log *slog.Logger
}

// Option customises a composer.
type Option func(*Composer)

// WithCache installs the proof cache backend. Defaults to the in-process
// TTL cache.
func WithCache(c cache.Cache) Option {
	return func(cp *Composer) {
		if c != nil {
			cp.cache = c
		}
	}
}

// WithLogger overrides the composer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(cp *Composer) {
		if l != nil {
			cp.log = l
		}
	}
}

// WithTelemetry installs the telemetry collector at construction time.
func WithTelemetry(t proof.TelemetryCollector) Option {
	return func(cp *Composer) { cp.telemetry = t }
}

// New builds a composer with the given configuration.
func New(cfg proof.CompositionConfig, opts ...Option) *Composer {
	cfg = cfg.Normalize()
	c := &Composer{
		cfg:           cfg,
		registrations: make(map[proof.System]*Registration),
		listeners:     make(map[int]proof.EventListener),
		cache:         cache.NewMemoryCache(),
		log:           logger.Named("composer"),
	}
	c.workers.size = cfg.MaxParallelWorkers
	c.flight.calls = make(map[string]*flightCall)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the composer's normalized configuration.
func (c *Composer) Config() proof.CompositionConfig { return c.cfg }

// guard rejects operations on a disposed composer.
func (c *Composer) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return &proof.CompositionError{
			Code:    proof.CodeDisposed,
			Message: "composer has been disposed",
		}
	}
	return nil
}

// RegisterProvider attaches a provider. Registering a second provider for an
// already-covered system fails unless Override is set, in which case the old
// registration is replaced and the system keeps exactly one provider.
func (c *Composer) RegisterProvider(p provider.Provider, opts RegisterOptions) (Registration, error) {
	if err := c.guard(); err != nil {
		return Registration{}, err
	}
	if p == nil {
		return Registration{}, xerrors.New(xerrors.CodeInvalidArgument, "provider cannot be nil")
	}
	info := p.Info()
	if !proof.IsValidSystem(info.System) {
		return Registration{}, &proof.CompositionError{
			Code:    proof.CodeNotSupported,
			System:  info.System,
			Message: fmt.Sprintf("unknown proof system %q", info.System),
		}
	}
	if err := opts.Policy.Validate(p.Capabilities()); err != nil {
		return Registration{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.registrations[info.System]; ok && !opts.Override {
		return Registration{}, &proof.CompositionError{
			Code:    xerrors.CodeConflict,
			System:  info.System,
			Message: fmt.Sprintf("system %q is already served by provider %s", info.System, existing.ID),
		}
	}
	reg := &Registration{
		ID:       info.ID,
		System:   info.System,
		Priority: opts.Priority,
		Enabled:  !opts.Disabled,
		provider: p,
	}
	c.registrations[info.System] = reg
	c.log.Info("provider registered",
		slog.String("provider", reg.ID),
		slog.String("system", string(reg.System)),
		slog.Int("priority", reg.Priority))
	return *reg, nil
}

// UnregisterProvider removes the registration with the given id and reports
// whether one was removed.
func (c *Composer) UnregisterProvider(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for system, reg := range c.registrations {
		if reg.ID == id {
			delete(c.registrations, system)
			c.log.Info("provider unregistered", slog.String("provider", id))
			return true
		}
	}
	return false
}

// ProviderForSystem returns the provider registered for a system.
func (c *Composer) ProviderForSystem(system proof.System) (provider.Provider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.registrations[system]
	if !ok || !reg.Enabled {
		return nil, false
	}
	return reg.provider, true
}

// Registrations returns a snapshot of the current registrations ordered by
// descending priority.
func (c *Composer) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := make([]Registration, 0, len(c.registrations))
	for _, reg := range c.registrations {
		regs = append(regs, *reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Priority == regs[j].Priority {
			return regs[i].System < regs[j].System
		}
		return regs[i].Priority > regs[j].Priority
	})
	return regs
}

// defaultProvider picks the enabled registration with the highest priority.
func (c *Composer) defaultProvider() (provider.Provider, bool) {
	regs := c.Registrations()
	for _, reg := range regs {
		if reg.Enabled {
			return reg.provider, true
		}
	}
	return nil, false
}

// Initialize brings up every registered provider that is not yet ready. It
// is idempotent and skips providers already serving.
func (c *Composer) Initialize(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	var errs []error
	for _, reg := range c.Registrations() {
		if reg.provider.Status().Ready() {
			continue
		}
		if err := reg.provider.Initialize(ctx); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", reg.ID, err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, errors.Join(errs...), "initialize providers")
	}
	return nil
}

// Dispose tears down every provider, then clears the registry, listeners and
// fallback state. Safe to call repeatedly.
func (c *Composer) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	regs := make([]*Registration, 0, len(c.registrations))
	for _, reg := range c.registrations {
		regs = append(regs, reg)
	}
	c.registrations = make(map[proof.System]*Registration)
	c.listeners = make(map[int]proof.EventListener)
	c.fallback = nil
	c.disposed = true
	c.mu.Unlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.provider.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", reg.ID, err))
		}
	}
	c.log.Info("composer disposed", slog.Int("providers", len(regs)))
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AddEventListener registers a listener and returns its handle.
func (c *Composer) AddEventListener(l proof.EventListener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = l
	return id
}

// RemoveEventListener drops the listener with the given handle.
func (c *Composer) RemoveEventListener(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[id]; !ok {
		return false
	}
	delete(c.listeners, id)
	return true
}

// emit delivers an event to every listener synchronously. A panicking
// listener is isolated and never aborts the in-flight operation.
func (c *Composer) emit(event proof.CompositionEvent) {
	c.mu.Lock()
	snapshot := make([]proof.EventListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l != nil {
			snapshot = append(snapshot, l)
		}
	}
	c.mu.Unlock()
	for _, l := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn("event listener panicked",
						slog.String("composition", event.CompositionID),
						slog.Any("panic", r))
				}
			}()
			l(event)
		}()
	}
}

// SetTelemetryCollector installs the telemetry sink.
func (c *Composer) SetTelemetryCollector(t proof.TelemetryCollector) {
	c.mu.Lock()
	c.telemetry = t
	c.mu.Unlock()
}

// record emits one telemetry sample if a collector is installed.
func (c *Composer) record(operation string, system proof.System, success bool, started time.Time, errCode xerrors.Code) {
	c.mu.Lock()
	t := c.telemetry
	c.mu.Unlock()
	if t == nil {
		return
	}
	t.Record(proof.OperationTelemetry{
		Operation: operation,
		System:    system,
		Success:   success,
		Duration:  time.Since(started),
		Timestamp: time.Now().UnixMilli(),
		ErrorCode: string(errCode),
	})
}

// SetFallbackConfig stores the declarative retry chain applied after the
// primary provider fails.
func (c *Composer) SetFallbackConfig(cfg proof.FallbackConfig) {
	c.mu.Lock()
	c.fallback = &cfg
	c.mu.Unlock()
}

// FallbackConfig returns the stored fallback chain, if any.
func (c *Composer) FallbackConfig() (proof.FallbackConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fallback == nil {
		return proof.FallbackConfig{}, false
	}
	return *c.fallback, true
}

// errorCode extracts the stable code from any error produced inside the
// engine.
func errorCode(err error) xerrors.Code {
	var ce *proof.CompositionError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return xerrors.CodeOf(err)
}
