package proof

import (
	"fmt"
	"strings"

	xerrors "SIP-Compose/internal/errors"
)

// Domain error codes. Expected failures travel inside structured results;
// the typed errors below are reserved for programmer misuse.
const (
	CodeProviderNotFound    xerrors.Code = "PROVIDER_NOT_FOUND"
	CodeProviderNotReady    xerrors.Code = "PROVIDER_NOT_READY"
	CodeCircuitNotFound     xerrors.Code = "CIRCUIT_NOT_FOUND"
	CodeInvalidProof        xerrors.Code = "INVALID_PROOF"
	CodeInvalidInput        xerrors.Code = "INVALID_INPUT"
	CodeTooManyProofs       xerrors.Code = "TOO_MANY_PROOFS"
	CodeTimeout             xerrors.Code = "TIMEOUT"
	CodeIncompatibleSystems xerrors.Code = "INCOMPATIBLE_SYSTEMS"
	CodeNotSupported        xerrors.Code = "NOT_SUPPORTED"
	CodeUnsupportedVersion  xerrors.Code = "UNSUPPORTED_VERSION"
	CodeVerificationFailed  xerrors.Code = "VERIFICATION_FAILED"
	CodeProofExpired        xerrors.Code = "PROOF_EXPIRED"
	CodeSystemMismatch      xerrors.Code = "SYSTEM_MISMATCH"
	CodeNotInitialized      xerrors.Code = "NOT_INITIALIZED"
	CodeDisposed            xerrors.Code = "DISPOSED"
)

func init() {
	xerrors.Register(CodeProviderNotFound, xerrors.Attributes{
		Message:   "no provider registered for system",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeProviderNotReady, xerrors.Attributes{
		Message:   "provider not ready",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeCircuitNotFound, xerrors.Attributes{
		Message:   "circuit not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidProof, xerrors.Attributes{
		Message:   "invalid proof",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidInput, xerrors.Attributes{
		Message:   "invalid conversion input",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTooManyProofs, xerrors.Attributes{
		Message:   "proof count exceeds configured maximum",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTimeout, xerrors.Attributes{
		Message:   "proof operation timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeIncompatibleSystems, xerrors.Attributes{
		Message:   "proof systems are incompatible",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeNotSupported, xerrors.Attributes{
		Message:   "operation not supported",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnsupportedVersion, xerrors.Attributes{
		Message:   "unsupported native tool version",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeVerificationFailed, xerrors.Attributes{
		Message:   "proof failed verification",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeProofExpired, xerrors.Attributes{
		Message:   "proof has expired",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSystemMismatch, xerrors.Attributes{
		Message:   "proof system mismatch",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeNotInitialized, xerrors.Attributes{
		Message:   "provider not initialized",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeDisposed, xerrors.Attributes{
		Message:   "composer has been disposed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// CompositionError is the base typed error for programmer misuse of the
// composition engine. It carries a stable code plus the system and proof the
// failure relates to.
type CompositionError struct {
	Code    xerrors.Code
	System  System
	ProofID string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.System != "" {
		fmt.Fprintf(&b, " (system=%s)", e.System)
	}
	if e.ProofID != "" {
		fmt.Fprintf(&b, " (proof=%s)", e.ProofID)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *CompositionError) Unwrap() error { return e.Cause }

// ProviderNotFoundError signals a call against a system with no registered
// provider.
type ProviderNotFoundError struct {
	CompositionError
}

// NewProviderNotFoundError builds the typed error for an unregistered system.
func NewProviderNotFoundError(system System) *ProviderNotFoundError {
	return &ProviderNotFoundError{CompositionError{
		Code:    CodeProviderNotFound,
		System:  system,
		Message: fmt.Sprintf("no provider registered for system %q", system),
	}}
}

// TimeoutError signals that a composition-engine operation exceeded its
// deadline.
type TimeoutError struct {
	CompositionError
}

// NewTimeoutError builds the typed timeout error.
func NewTimeoutError(operation string, cause error) *TimeoutError {
	return &TimeoutError{CompositionError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Cause:   cause,
	}}
}

// IncompatibleSystemsError signals an operation across systems that cannot
// interoperate.
type IncompatibleSystemsError struct {
	CompositionError
	Source System
	Target System
}

// NewIncompatibleSystemsError builds the typed cross-system error.
func NewIncompatibleSystemsError(source, target System) *IncompatibleSystemsError {
	return &IncompatibleSystemsError{
		CompositionError: CompositionError{
			Code:    CodeIncompatibleSystems,
			System:  source,
			Message: fmt.Sprintf("systems %q and %q are incompatible", source, target),
		},
		Source: source,
		Target: target,
	}
}

// FieldError describes one structural validation failure inside a proof.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidProofError carries the per-field validation failures of a rejected
// proof.
type InvalidProofError struct {
	CompositionError
	Fields []FieldError
}

// NewInvalidProofError builds the typed validation error.
func NewInvalidProofError(proofID string, fields []FieldError) *InvalidProofError {
	msg := "proof failed structural validation"
	if len(fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, fields[0].Message)
	}
	return &InvalidProofError{
		CompositionError: CompositionError{
			Code:    CodeInvalidProof,
			ProofID: proofID,
			Message: msg,
		},
		Fields: fields,
	}
}

// UnsupportedVersionError reports a native tool version outside the
// converter's whitelist.
type UnsupportedVersionError struct {
	CompositionError
	Provided  string
	Supported []string
}

// NewUnsupportedVersionError builds the typed version error.
func NewUnsupportedVersionError(system System, provided string, supported []string) *UnsupportedVersionError {
	return &UnsupportedVersionError{
		CompositionError: CompositionError{
			Code:   CodeUnsupportedVersion,
			System: system,
			Message: fmt.Sprintf("version %q is not supported (supported: %s)",
				provided, strings.Join(supported, ", ")),
		},
		Provided:  provided,
		Supported: supported,
	}
}
