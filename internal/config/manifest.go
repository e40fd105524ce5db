package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SIP-Compose/pkg/proof"
)

// Manifest models the structure of configs/systems.yaml.
type Manifest struct {
	Systems map[string]SystemDefinition `yaml:"systems"`
}

// SystemDefinition describes one proof system entry in the manifest.
type SystemDefinition struct {
	Enabled  bool                `yaml:"enabled"`
	Version  string              `yaml:"version"`
	Priority int                 `yaml:"priority"`
	Circuits []CircuitDefinition `yaml:"circuits"`
	Fallback *FallbackDefinition `yaml:"fallback"`
}

// CircuitDefinition names a circuit the system's provider should register.
type CircuitDefinition struct {
	ID           string   `yaml:"id"`
	Version      string   `yaml:"version"`
	PublicInputs []string `yaml:"public_inputs"`
}

// FallbackDefinition configures the retry chain for a primary system.
type FallbackDefinition struct {
	Chain          []string `yaml:"chain"`
	MaxRetries     int      `yaml:"max_retries"`
	Backoff        string   `yaml:"backoff"`
	BackoffDelayMs int      `yaml:"backoff_delay_ms"`
}

// LoadManifest parses the YAML file containing proof-system metadata. An
// empty path yields an empty manifest.
func LoadManifest(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return Manifest{Systems: map[string]SystemDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read system manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse system manifest: %w", err)
	}
	if manifest.Systems == nil {
		manifest.Systems = map[string]SystemDefinition{}
	}
	if err := manifest.validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m Manifest) validate() error {
	for name, def := range m.Systems {
		if !proof.IsValidSystem(proof.System(name)) {
			return fmt.Errorf("unknown proof system in manifest: %s", name)
		}
		for _, circuit := range def.Circuits {
			if strings.TrimSpace(circuit.ID) == "" {
				return fmt.Errorf("system %s declares a circuit without an id", name)
			}
		}
		if def.Fallback == nil {
			continue
		}
		for _, member := range def.Fallback.Chain {
			if !proof.IsValidSystem(proof.System(member)) {
				return fmt.Errorf("system %s has an unknown fallback member: %s", name, member)
			}
		}
		switch def.Fallback.Backoff {
		case "", "none", "fixed", "exponential":
		default:
			return fmt.Errorf("system %s has an unknown backoff strategy: %s", name, def.Fallback.Backoff)
		}
	}
	return nil
}

// EnabledSystems returns the enabled systems sorted by descending priority,
// name as tiebreak.
func (m Manifest) EnabledSystems() []proof.System {
	names := make([]string, 0, len(m.Systems))
	for name, def := range m.Systems {
		if def.Enabled {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := m.Systems[names[i]].Priority, m.Systems[names[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})
	systems := make([]proof.System, len(names))
	for i, name := range names {
		systems[i] = proof.System(name)
	}
	return systems
}

// FallbackFor converts the manifest entry of the given system into a runtime
// fallback config. Returns nil when the system declares none.
func (m Manifest) FallbackFor(system proof.System) *proof.FallbackConfig {
	def, ok := m.Systems[string(system)]
	if !ok || def.Fallback == nil {
		return nil
	}
	chain := make([]proof.System, 0, len(def.Fallback.Chain))
	for _, member := range def.Fallback.Chain {
		chain = append(chain, proof.System(member))
	}
	fb := &proof.FallbackConfig{
		Primary:    system,
		Chain:      chain,
		MaxRetries: def.Fallback.MaxRetries,
	}
	switch def.Fallback.Backoff {
	case "fixed":
		fb.Backoff = proof.BackoffFixed
	case "exponential":
		fb.Backoff = proof.BackoffExponential
	default:
		fb.Backoff = proof.BackoffNone
	}
	if def.Fallback.BackoffDelayMs > 0 {
		fb.BaseDelay = time.Duration(def.Fallback.BackoffDelayMs) * time.Millisecond
	}
	return fb
}
