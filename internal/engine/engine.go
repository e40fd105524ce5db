// Package engine assembles the composition stack from the runtime config and
// the proof-system manifest: composer, providers, proof cache, async job
// pipeline and the metrics endpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"SIP-Compose/internal/cache"
	"SIP-Compose/internal/config"
	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/internal/jobs"
	"SIP-Compose/internal/observability/metrics"
	"SIP-Compose/pkg/composer"
	"SIP-Compose/pkg/logger"
	"SIP-Compose/pkg/proof"
	"SIP-Compose/pkg/provider"
	"SIP-Compose/pkg/provider/groth16"
)

// Engine owns the assembled components and their lifecycle.
type Engine struct {
	cfg      *config.Config
	manifest config.Manifest

	composer   *composer.Composer
	proofCache cache.Cache
	store      jobs.Store
	queue      jobs.Queue
	service    *jobs.Service
	processor  *jobs.Processor

	log *slog.Logger
}

// New builds an engine from the loaded config. Providers for every enabled
// manifest system are registered; without a manifest the three simulated
// backends are registered with their defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "config cannot be nil")
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{cfg.Logging.Output},
		Journal: logger.JournalConfig{
			Enabled: cfg.Logging.JournalPath != "",
			Path:    cfg.Logging.JournalPath,
		},
	}); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "initialize logging")
	}

	manifest, err := loadManifest(cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, manifest: manifest, log: logger.Named("engine")}
	if err := e.buildCache(); err != nil {
		return nil, err
	}
	e.composer = composer.New(compositionConfig(cfg.Composition),
		composer.WithCache(e.proofCache),
		composer.WithTelemetry(metrics.Collector{}),
	)
	if err := e.registerProviders(); err != nil {
		return nil, err
	}
	if err := e.buildJobs(); err != nil {
		return nil, err
	}
	return e, nil
}

// loadManifest treats a missing manifest file as an empty manifest so a bare
// config still yields a working engine.
func loadManifest(path string) (config.Manifest, error) {
	manifest, err := config.LoadManifest(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Manifest{Systems: map[string]config.SystemDefinition{}}, nil
		}
		return config.Manifest{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "load system manifest")
	}
	return manifest, nil
}

func compositionConfig(c config.CompositionConfig) proof.CompositionConfig {
	return proof.CompositionConfig{
		Strategy:                 proof.Strategy(c.Strategy),
		MaxProofs:                c.MaxProofs,
		Timeout:                  c.Timeout(),
		EnableParallelGeneration: c.EnableParallelGeneration,
		MaxParallelWorkers:       c.MaxParallelWorkers,
		EnableCaching:            c.EnableCaching,
		CacheTTL:                 c.CacheTTL(),
	}
}

func (e *Engine) buildCache() error {
	switch e.cfg.Cache.Driver {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Address:   e.cfg.Cache.Redis.Address,
			Password:  e.cfg.Cache.Redis.Password,
			DB:        e.cfg.Cache.Redis.DB,
			KeyPrefix: e.cfg.Cache.Redis.KeyPrefix,
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "connect proof cache")
		}
		e.proofCache = redisCache
	default:
		e.proofCache = cache.NewMemoryCache()
	}
	return nil
}

// registerProviders attaches one provider per enabled manifest system, with
// the manifest's circuits and fallback chain. The first declared fallback
// wins, matching the single-chain composer contract.
func (e *Engine) registerProviders() error {
	systems := e.manifest.EnabledSystems()
	if len(systems) == 0 {
		systems = []proof.System{proof.SystemNoir, proof.SystemHalo2, proof.SystemKimchi}
	}
	fallbackSet := false
	for _, system := range systems {
		def := e.manifest.Systems[string(system)]
		p, err := e.buildProvider(system, def)
		if err != nil {
			return err
		}
		if _, err := e.composer.RegisterProvider(p, composer.RegisterOptions{Priority: def.Priority}); err != nil {
			return err
		}
		if !fallbackSet {
			if fb := e.manifest.FallbackFor(system); fb != nil {
				e.composer.SetFallbackConfig(*fb)
				fallbackSet = true
			}
		}
	}
	return nil
}

func (e *Engine) buildProvider(system proof.System, def config.SystemDefinition) (provider.Provider, error) {
	if system == proof.SystemGroth16 {
		// gnark circuits need in-code Definitions; manifest circuit entries
		// beyond the built-in one cannot be registered declaratively.
		p, err := groth16.New(provider.Config{Version: def.Version})
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	var opts []provider.SimulatedOption
	if def.Version != "" {
		opts = append(opts, provider.WithSystemVersion(def.Version))
	}
	p, err := provider.NewSimulated(system, provider.Config{BatchVerification: true, Aggregation: true}, opts...)
	if err != nil {
		return nil, err
	}
	for _, circuit := range def.Circuits {
		if err := p.RegisterCircuit(provider.Circuit{
			ID:          circuit.ID,
			Version:     circuit.Version,
			PublicNames: circuit.PublicInputs,
		}); err != nil {
			return nil, fmt.Errorf("register circuit %s on %s: %w", circuit.ID, system, err)
		}
	}
	return p, nil
}

func (e *Engine) buildJobs() error {
	switch e.cfg.Jobs.Store.Driver {
	case "mysql":
		store, err := jobs.NewMySQLStore(e.cfg.Jobs.Store.DSN)
		if err != nil {
			return err
		}
		e.store = store
	default:
		e.store = jobs.NewMemoryStore()
	}

	switch e.cfg.Jobs.Queue.Driver {
	case "redis":
		redisCfg := e.cfg.Jobs.Queue.Redis
		queue, err := jobs.NewRedisQueue(jobs.RedisQueueConfig{
			Address:   redisCfg.Address,
			Password:  redisCfg.Password,
			DB:        redisCfg.DB,
			Queue:     redisCfg.Queue,
			BlockWait: time.Duration(redisCfg.BlockWait) * time.Second,
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "connect job queue")
		}
		e.queue = queue
	case "rabbitmq":
		rabbitCfg := e.cfg.Jobs.Queue.RabbitMQ
		queue, err := jobs.NewRabbitMQQueue(jobs.RabbitMQConfig{
			URL:        rabbitCfg.URL,
			Queue:      rabbitCfg.Queue,
			Prefetch:   rabbitCfg.Prefetch,
			Durable:    rabbitCfg.Durable,
			AutoDelete: rabbitCfg.AutoDelete,
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "connect job queue")
		}
		e.queue = queue
	default:
		e.queue = jobs.NewMemoryQueue(0)
	}

	e.service = jobs.NewService(e.store, e.queue, e.cfg.Jobs.Retries)
	e.processor = jobs.NewProcessor(e.composer, e.store, e.queue, e.queue,
		jobs.WithWorkerCount(e.cfg.Jobs.Workers))
	return nil
}

// Start initializes the providers and launches the job consumers and, when
// enabled, the metrics endpoint. The background loops stop with ctx.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.composer.Initialize(ctx); err != nil {
		return err
	}
	go func() {
		if err := e.processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("job processor stopped", slog.Any("error", err))
		}
	}()
	if e.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, e.cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				e.log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}
	e.log.Info("engine started",
		slog.Int("providers", len(e.composer.Registrations())),
		slog.String("cache", e.cfg.Cache.Driver),
		slog.String("queue", e.cfg.Jobs.Queue.Driver),
	)
	return nil
}

// Composer exposes the orchestration engine for synchronous callers.
func (e *Engine) Composer() *composer.Composer { return e.composer }

// Jobs exposes the async generation service.
func (e *Engine) Jobs() *jobs.Service { return e.service }

// Close disposes the providers and releases the cache, store and queue.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.composer != nil {
		errs = append(errs, e.composer.Dispose(ctx))
	}
	if e.service != nil {
		errs = append(errs, e.service.Close())
	}
	if e.proofCache != nil {
		errs = append(errs, e.proofCache.Close())
	}
	return errors.Join(errs...)
}
