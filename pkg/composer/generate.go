package composer

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"SIP-Compose/internal/cache"
	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
)

// flightCall tracks one in-flight generation so concurrent identical
// requests share a single provider call.
type flightCall struct {
	done   chan struct{}
	result proof.GenerationResult
}

type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

// begin returns the in-flight call for key, or registers a new one. The
// boolean reports whether the caller owns the call and must complete it.
func (g *flightGroup) begin(key string) (*flightCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if call, ok := g.calls[key]; ok {
		return call, false
	}
	call := &flightCall{done: make(chan struct{})}
	g.calls[key] = call
	return call, true
}

func (g *flightGroup) finish(key string, call *flightCall, result proof.GenerationResult) {
	call.result = result
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)
}

// cacheKey derives the cache and coalescing key from the proving statement.
// Private inputs are part of the statement: different witnesses must not
// collide.
func cacheKey(system proof.System, req proof.GenerationRequest) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(req.CircuitID))
	writeInputs := func(tag byte, inputs map[string]any) {
		h.Write([]byte{tag})
		canonical, err := proof.CanonicalInputs(inputs)
		if err != nil {
			// Uncanonicalizable inputs never reach the cache; the key
			// only needs to be stable.
			return
		}
		for _, in := range canonical {
			h.Write([]byte{0})
			h.Write([]byte(in))
		}
	}
	writeInputs(1, req.PublicInputs)
	writeInputs(2, req.PrivateInputs)
	return proof.EncodeProofBytes(h.Sum(nil))
}

// GenerateProof produces one proof. Expected failures (missing provider,
// unknown circuit, timeout) are returned as structured results, never as
// errors.
func (c *Composer) GenerateProof(ctx context.Context, req proof.GenerationRequest) proof.GenerationResult {
	started := time.Now()
	if err := c.guard(); err != nil {
		return failedGeneration(started, "", err)
	}

	var prov provider.Provider
	var ok bool
	if req.System != "" {
		prov, ok = c.ProviderForSystem(req.System)
	} else {
		prov, ok = c.defaultProvider()
	}
	if !ok {
		system := req.System
		err := proof.NewProviderNotFoundError(system)
		c.record("generate", system, false, started, errorCode(err))
		return failedGeneration(started, "", err)
	}
	system := prov.Info().System

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := c.generateOn(ctx, prov, req, timeout, started)
	if !result.Success {
		if fallback := c.fallbackResult(ctx, system, req, started); fallback != nil {
			result = *fallback
		}
	}
	c.record("generate", system, result.Success, started, result.ErrorCode)
	return result
}

// generateOn runs one generation attempt against a specific provider,
// consulting the cache first.
func (c *Composer) generateOn(ctx context.Context, prov provider.Provider, req proof.GenerationRequest, timeout time.Duration, started time.Time) proof.GenerationResult {
	providerID := prov.Info().ID
	system := prov.Info().System

	if err := prov.WaitUntilReady(ctx, timeout); err != nil {
		return failedGeneration(started, providerID, err)
	}

	if !c.cfg.EnableCaching {
		return c.callProvider(ctx, prov, req, started)
	}

	key := cacheKey(system, req)
	if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		c.log.Debug("proof cache hit", slog.String("circuit", req.CircuitID), slog.String("system", string(system)))
		return proof.GenerationResult{
			Success:    true,
			Proof:      cached,
			TimeMS:     time.Since(started).Milliseconds(),
			ProviderID: providerID,
		}
	}

	call, owner := c.flight.begin(key)
	if !owner {
		select {
		case <-call.done:
			result := call.result
			result.TimeMS = time.Since(started).Milliseconds()
			return result
		case <-ctx.Done():
			return failedGeneration(started, providerID, proof.NewTimeoutError("generate proof", ctx.Err()))
		}
	}

	result := c.callProvider(ctx, prov, req, started)
	if result.Success && result.Proof != nil {
		if err := c.cache.Set(ctx, key, result.Proof, c.cfg.CacheTTL); err != nil {
			c.log.Warn("proof cache write failed", slog.String("error", err.Error()))
		}
	}
	c.flight.finish(key, call, result)
	return result
}

func (c *Composer) callProvider(ctx context.Context, prov provider.Provider, req proof.GenerationRequest, started time.Time) proof.GenerationResult {
	providerID := prov.Info().ID
	p, err := prov.GenerateProof(ctx, req)
	if err != nil {
		return failedGeneration(started, providerID, err)
	}
	return proof.GenerationResult{
		Success:    true,
		Proof:      p,
		TimeMS:     time.Since(started).Milliseconds(),
		ProviderID: providerID,
	}
}

// fallbackResult walks the configured fallback chain sequentially after the
// primary system failed. It returns nil when no fallback applies.
func (c *Composer) fallbackResult(ctx context.Context, failedSystem proof.System, req proof.GenerationRequest, started time.Time) *proof.GenerationResult {
	fb, ok := c.FallbackConfig()
	if !ok || fb.Primary != failedSystem || len(fb.Chain) == 0 {
		return nil
	}
	retries := fb.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	attempt := 0
	for _, system := range fb.Chain {
		prov, ok := c.ProviderForSystem(system)
		if !ok {
			continue
		}
		for r := 0; r < retries; r++ {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if delay := backoffDelay(fb, attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
			attempt++
			c.log.Info("fallback attempt",
				slog.String("circuit", req.CircuitID),
				slog.String("system", string(system)),
				slog.Int("attempt", attempt))
			fbReq := req
			fbReq.System = system
			result := c.generateOn(ctx, prov, fbReq, c.cfg.Timeout, started)
			if result.Success {
				return &result
			}
		}
	}
	return nil
}

func backoffDelay(fb proof.FallbackConfig, attempt int) time.Duration {
	base := fb.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	switch fb.Backoff {
	case proof.BackoffFixed:
		return base
	case proof.BackoffExponential:
		return base << uint(attempt)
	default:
		return 0
	}
}

// GenerateProofs dispatches many requests, sequentially or via the bounded
// worker pool. Result order always matches request order.
func (c *Composer) GenerateProofs(ctx context.Context, reqs []proof.GenerationRequest) []proof.GenerationResult {
	results := make([]proof.GenerationResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if !c.cfg.EnableParallelGeneration || len(reqs) == 1 {
		for i, req := range reqs {
			results[i] = c.GenerateProof(ctx, req)
		}
		return results
	}

	sem := make(chan struct{}, c.WorkerPoolStatus().Size)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req proof.GenerationRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			c.workers.enter()
			defer c.workers.leave()
			results[i] = c.GenerateProof(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

func failedGeneration(started time.Time, providerID string, err error) proof.GenerationResult {
	return proof.GenerationResult{
		Success:    false,
		TimeMS:     time.Since(started).Milliseconds(),
		ProviderID: providerID,
		Error:      err.Error(),
		ErrorCode:  errorCode(err),
	}
}

// CacheStats reports the proof cache's effectiveness.
func (c *Composer) CacheStats(ctx context.Context) (cache.Stats, error) {
	return c.cache.Stats(ctx)
}

// ClearCache drops every cached proof.
func (c *Composer) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}
