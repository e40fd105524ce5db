package converter

import (
	"fmt"
	"sort"
	"sync"

	"SIP-Compose/pkg/proof"
)

// Unified dispatches conversions to the per-system converter matching a
// proof's system tag.
type Unified struct {
	mu         sync.RWMutex
	converters map[proof.System]Converter
}

// NewUnified builds a dispatcher over the given converters. With no
// arguments it registers the default Noir, Halo2 and Kimchi converters.
func NewUnified(converters ...Converter) *Unified {
	if len(converters) == 0 {
		converters = []Converter{
			NewNoirConverter(),
			NewHalo2Converter(),
			NewKimchiConverter(),
		}
	}
	u := &Unified{converters: make(map[proof.System]Converter, len(converters))}
	for _, c := range converters {
		if c != nil {
			u.converters[c.System()] = c
		}
	}
	return u
}

// Register adds or replaces the converter for its system.
func (u *Unified) Register(c Converter) {
	if c == nil {
		return
	}
	u.mu.Lock()
	u.converters[c.System()] = c
	u.mu.Unlock()
}

// ConverterFor returns the converter registered for a system.
func (u *Unified) ConverterFor(system proof.System) (Converter, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	c, ok := u.converters[system]
	return c, ok
}

// SupportedSystems returns the sorted set of dispatchable systems.
func (u *Unified) SupportedSystems() []proof.System {
	u.mu.RLock()
	defer u.mu.RUnlock()
	systems := make([]proof.System, 0, len(u.converters))
	for system := range u.converters {
		systems = append(systems, system)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })
	return systems
}

// IsSystemSupported reports whether a converter is registered for the system.
func (u *Unified) IsSystemSupported(system proof.System) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.converters[system]
	return ok
}

// ToSIP dispatches on the native proof's system tag.
func (u *Unified) ToSIP(native proof.NativeProof, opts Options) (*proof.SingleProof, error) {
	if native == nil {
		return nil, invalidInput("", []proof.FieldError{{Field: "proof", Message: "native proof is nil"}})
	}
	c, ok := u.ConverterFor(native.NativeSystem())
	if !ok {
		return nil, unsupportedSystem(native.NativeSystem())
	}
	return c.ToSIP(native, opts)
}

// FromSIP dispatches on the SIP proof's system tag.
func (u *Unified) FromSIP(sip *proof.SingleProof, opts Options) (proof.NativeProof, error) {
	if sip == nil {
		return nil, invalidInput("", []proof.FieldError{{Field: "proof", Message: "sip proof is nil"}})
	}
	c, ok := u.ConverterFor(sip.Metadata.System)
	if !ok {
		return nil, unsupportedSystem(sip.Metadata.System)
	}
	return c.FromSIP(sip, opts)
}

// ValidateNative dispatches structural validation by system tag.
func (u *Unified) ValidateNative(native proof.NativeProof) ValidationReport {
	report := ValidationReport{Valid: true}
	if native == nil {
		report.addError("proof", "native proof is nil")
		return report
	}
	c, ok := u.ConverterFor(native.NativeSystem())
	if !ok {
		report.addError("system", fmt.Sprintf("no converter registered for system %q", native.NativeSystem()))
		return report
	}
	return c.ValidateNative(native)
}

func unsupportedSystem(system proof.System) error {
	return &proof.CompositionError{
		Code:    proof.CodeNotSupported,
		System:  system,
		Message: fmt.Sprintf("no converter registered for system %q", system),
	}
}
