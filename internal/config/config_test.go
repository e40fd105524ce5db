package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SIP-Compose/pkg/proof"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sipcompose.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Composition.Strategy != "sequential" || cfg.Composition.MaxProofs != 16 {
		t.Fatalf("composition defaults missing: %+v", cfg.Composition)
	}
	if cfg.Composition.Timeout() != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Composition.Timeout())
	}
	if cfg.Composition.CacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected cache ttl: %s", cfg.Composition.CacheTTL())
	}
	if cfg.Cache.Driver != "memory" || cfg.Jobs.Store.Driver != "memory" || cfg.Jobs.Queue.Driver != "memory" {
		t.Fatalf("driver defaults missing: %+v", cfg)
	}
	if cfg.Jobs.Retries != 3 || cfg.Jobs.Workers != 2 {
		t.Fatalf("jobs defaults missing: %+v", cfg.Jobs)
	}
	if cfg.Metrics.Address != ":9102" {
		t.Fatalf("metrics default missing: %s", cfg.Metrics.Address)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults missing: %+v", cfg.Logging)
	}
	wantManifest := filepath.Join(filepath.Dir(path), "systems.yaml")
	if cfg.Manifest.Path != wantManifest {
		t.Fatalf("manifest path %s, expected %s", cfg.Manifest.Path, wantManifest)
	}
}

func TestLoadResolvesRelativeManifestPath(t *testing.T) {
	path := writeConfig(t, `{"manifest": {"path": "proof-systems.yaml"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "proof-systems.yaml")
	if cfg.Manifest.Path != want {
		t.Fatalf("manifest path %s, expected %s", cfg.Manifest.Path, want)
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"cache", `{"cache": {"driver": "memcached"}}`, "unknown cache driver"},
		{"store", `{"jobs": {"store": {"driver": "postgres"}}}`, "unknown job store driver"},
		{"queue", `{"jobs": {"queue": {"driver": "kafka"}}}`, "unknown job queue driver"},
		{"mysql-dsn", `{"jobs": {"store": {"driver": "mysql"}}}`, "requires a dsn"},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		_, err := Load(path)
		if err == nil {
			t.Fatalf("%s: invalid config accepted", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"composition": {"max_proofs": 8}}`)
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Composition.MaxProofs != 8 {
		t.Fatalf("env override ignored: %d", cfg.Composition.MaxProofs)
	}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "systems.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifestEmptyPath(t *testing.T) {
	manifest, err := LoadManifest("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(manifest.Systems) != 0 {
		t.Fatalf("expected an empty manifest, got %+v", manifest)
	}
}

func TestManifestEnabledSystemsOrdering(t *testing.T) {
	path := writeManifest(t, `
systems:
  noir:
    enabled: true
    priority: 30
  halo2:
    enabled: true
    priority: 20
  kimchi:
    enabled: true
    priority: 20
  groth16:
    enabled: false
    priority: 99
`)
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := manifest.EnabledSystems()
	want := []proof.System{proof.SystemNoir, proof.SystemHalo2, proof.SystemKimchi}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestManifestFallbackFor(t *testing.T) {
	path := writeManifest(t, `
systems:
  noir:
    enabled: true
    version: 0.36.0
    fallback:
      chain: [halo2, kimchi]
      max_retries: 2
      backoff: exponential
      backoff_delay_ms: 100
  halo2:
    enabled: true
`)
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fb := manifest.FallbackFor(proof.SystemNoir)
	if fb == nil {
		t.Fatal("expected a fallback config")
	}
	if fb.Primary != proof.SystemNoir {
		t.Fatalf("unexpected primary: %s", fb.Primary)
	}
	if len(fb.Chain) != 2 || fb.Chain[0] != proof.SystemHalo2 || fb.Chain[1] != proof.SystemKimchi {
		t.Fatalf("unexpected chain: %v", fb.Chain)
	}
	if fb.Backoff != proof.BackoffExponential {
		t.Fatalf("unexpected backoff: %s", fb.Backoff)
	}
	if fb.BaseDelay != 100*time.Millisecond {
		t.Fatalf("unexpected base delay: %s", fb.BaseDelay)
	}
	if fb.MaxRetries != 2 {
		t.Fatalf("unexpected retries: %d", fb.MaxRetries)
	}

	if manifest.FallbackFor(proof.SystemHalo2) != nil {
		t.Fatal("halo2 declares no fallback")
	}
	if manifest.FallbackFor(proof.SystemGroth16) != nil {
		t.Fatal("absent system returned a fallback")
	}
}

func TestLoadManifestRejectsInvalidEntries(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"system", "systems:\n  starknet:\n    enabled: true\n", "unknown proof system"},
		{"chain", "systems:\n  noir:\n    fallback:\n      chain: [starknet]\n", "unknown fallback member"},
		{"backoff", "systems:\n  noir:\n    fallback:\n      backoff: jitter\n", "unknown backoff strategy"},
		{"circuit", "systems:\n  noir:\n    circuits:\n      - id: \"\"\n", "circuit without an id"},
	}
	for _, tc := range cases {
		path := writeManifest(t, tc.content)
		_, err := LoadManifest(path)
		if err == nil {
			t.Fatalf("%s: invalid manifest accepted", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}
