package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SIP-Compose/internal/config"
	"SIP-Compose/internal/jobs"
	"SIP-Compose/pkg/proof"
)

func memoryConfig(manifestPath string) *config.Config {
	return &config.Config{
		Composition: config.CompositionConfig{
			Strategy:        "sequential",
			MaxProofs:       16,
			TimeoutMs:       5000,
			EnableCaching:   true,
			CacheTTLSeconds: 60,
		},
		Cache:    config.CacheConfig{Driver: "memory"},
		Jobs:     config.JobsConfig{Retries: 3, Workers: 2},
		Logging:  config.LoggingConfig{Level: "error", Output: "stderr"},
		Manifest: config.ManifestConfig{Path: manifestPath},
	}
}

func writeTestManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "systems.yaml")
	manifest := `
systems:
  noir:
    enabled: true
    version: 0.36.0
    priority: 30
    circuits:
      - id: transfer-note
        version: 1.0.0
    fallback:
      chain: [halo2]
      max_retries: 1
  halo2:
    enabled: true
    priority: 20
    circuits:
      - id: transfer-note
        version: 1.0.0
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func newRunningEngine(t *testing.T, manifestPath string) *Engine {
	t.Helper()
	e, err := New(memoryConfig(manifestPath))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = e.Close(context.Background())
	})
	return e
}

func TestEngineRegistersManifestSystems(t *testing.T) {
	e := newRunningEngine(t, writeTestManifest(t))

	regs := e.Composer().Registrations()
	if len(regs) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(regs))
	}
	if regs[0].System != proof.SystemNoir {
		t.Fatalf("expected noir first by priority, got %s", regs[0].System)
	}
	fb, ok := e.Composer().FallbackConfig()
	if !ok {
		t.Fatal("manifest fallback not installed")
	}
	if fb.Primary != proof.SystemNoir || len(fb.Chain) != 1 || fb.Chain[0] != proof.SystemHalo2 {
		t.Fatalf("unexpected fallback: %+v", fb)
	}
}

func TestEngineDefaultsWithoutManifest(t *testing.T) {
	e := newRunningEngine(t, filepath.Join(t.TempDir(), "absent.yaml"))
	if got := len(e.Composer().Registrations()); got != 3 {
		t.Fatalf("expected the 3 simulated defaults, got %d", got)
	}
}

func TestEngineGeneratesSynchronously(t *testing.T) {
	e := newRunningEngine(t, writeTestManifest(t))
	result := e.Composer().GenerateProof(context.Background(), proof.GenerationRequest{
		CircuitID:    "transfer-note",
		System:       proof.SystemNoir,
		PublicInputs: map[string]any{"note": "0xabc"},
	})
	if !result.Success {
		t.Fatalf("generate: %s", result.Error)
	}
	if result.Proof.Metadata.SystemVersion != "0.36.0" {
		t.Fatalf("manifest version not applied: %s", result.Proof.Metadata.SystemVersion)
	}
}

func TestEngineRunsJobsEndToEnd(t *testing.T) {
	e := newRunningEngine(t, writeTestManifest(t))

	job, err := e.Jobs().Submit(context.Background(), jobs.SubmitRequest{
		CircuitID:    "transfer-note",
		System:       proof.SystemNoir,
		PublicInputs: map[string]any{"note": "0xdef"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := e.Jobs().WaitUntilCompleted(ctx, job.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Result == nil || !final.Result.Success {
		t.Fatalf("job did not produce a proof: %+v", final)
	}
	if final.Result.Proof.Metadata.System != proof.SystemNoir {
		t.Fatalf("unexpected system: %s", final.Result.Proof.Metadata.System)
	}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("nil config accepted")
	}
}
