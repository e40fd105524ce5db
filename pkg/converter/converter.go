// Package converter translates proofs between system-native representations
// and the canonical SIP wire format. Converters only guarantee same-system
// round trips; true cross-system proof translation is not implemented.
package converter

import (
	"time"

	"github.com/google/uuid"

	"SIP-Compose/pkg/proof"
)

// Options tune a single conversion call.
type Options struct {
	// ValidateBeforeConversion runs structural validation on the native
	// proof and rejects it with INVALID_INPUT on failure.
	ValidateBeforeConversion bool
	// IncludeVerificationKey attaches the native verification key to the
	// SIP proof when the native proof carries one.
	IncludeVerificationKey bool
	// PreserveNativeMetadata attaches a back-reference to the originating
	// SIP proof id when converting back to native form.
	PreserveNativeMetadata bool
	// IDGenerator overrides how SIP proof ids are assigned.
	IDGenerator func() string
}

func (o Options) newID() string {
	if o.IDGenerator != nil {
		return o.IDGenerator()
	}
	return uuid.NewString()
}

// ValidationReport is the outcome of structural validation of a native proof.
type ValidationReport struct {
	Valid    bool               `json:"valid"`
	Errors   []proof.FieldError `json:"errors"`
	Warnings []string           `json:"warnings"`
}

func (r *ValidationReport) addError(field, message string) {
	r.Errors = append(r.Errors, proof.FieldError{Field: field, Message: message})
	r.Valid = false
}

func (r *ValidationReport) addWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Converter translates between one system's native proof representation and
// the canonical SIP format.
type Converter interface {
	// System returns the proof system the converter handles.
	System() proof.System
	// Version returns the converter implementation version.
	Version() string
	// ToSIP re-encodes a native proof into the canonical format.
	ToSIP(native proof.NativeProof, opts Options) (*proof.SingleProof, error)
	// FromSIP reconstructs the native representation of a SIP proof.
	FromSIP(sip *proof.SingleProof, opts Options) (proof.NativeProof, error)
	// ValidateNative runs structural checks on a native proof.
	ValidateNative(native proof.NativeProof) ValidationReport
	// CanConvertFromSIP reports whether the SIP proof belongs to this
	// converter's system.
	CanConvertFromSIP(sip *proof.SingleProof) bool
	// SupportedVersions returns the whitelist of compatible native tool
	// versions.
	SupportedVersions() []string
}

func versionSupported(version string, supported []string) bool {
	for _, v := range supported {
		if v == version {
			return true
		}
	}
	return false
}

func stamp(system proof.System, converterVersion, nativeRef string) *proof.ConversionStamp {
	return &proof.ConversionStamp{
		SourceSystem:     system,
		TargetSystem:     system,
		ConverterVersion: converterVersion,
		ConvertedAt:      time.Now().UnixMilli(),
		NativeRef:        nativeRef,
	}
}

// canonicalize re-encodes native public inputs (hex or decimal) into the
// canonical hex form, reporting the first malformed input.
func canonicalize(inputs []string) ([]string, error) {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		encoded, err := proof.ToCanonical(in)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

func invalidInput(system proof.System, fields []proof.FieldError) error {
	err := proof.NewInvalidProofError("", fields)
	err.Code = proof.CodeInvalidInput
	err.System = system
	return err
}
