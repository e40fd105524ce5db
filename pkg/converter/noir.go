package converter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"SIP-Compose/pkg/proof"
)

const noirConverterVersion = "1.0.0"

// NoirConverter translates between Noir/Barretenberg native proofs and the
// canonical SIP format. Noir encodes public inputs as decimal field strings
// over the BN254 scalar field.
type NoirConverter struct {
	supported []string
}

// NewNoirConverter returns a converter accepting the given native tool
// versions, defaulting to the versions the protocol pins.
func NewNoirConverter(supportedVersions ...string) *NoirConverter {
	if len(supportedVersions) == 0 {
		supportedVersions = []string{"0.34.0", "0.35.0", "0.36.0"}
	}
	return &NoirConverter{supported: supportedVersions}
}

// System implements Converter.
func (c *NoirConverter) System() proof.System { return proof.SystemNoir }

// Version implements Converter.
func (c *NoirConverter) Version() string { return noirConverterVersion }

// SupportedVersions implements Converter.
func (c *NoirConverter) SupportedVersions() []string {
	return append([]string(nil), c.supported...)
}

// CanConvertFromSIP implements Converter.
func (c *NoirConverter) CanConvertFromSIP(sip *proof.SingleProof) bool {
	return sip != nil && sip.Metadata.System == proof.SystemNoir
}

// ToSIP implements Converter.
func (c *NoirConverter) ToSIP(native proof.NativeProof, opts Options) (*proof.SingleProof, error) {
	noir, ok := native.(*proof.NoirProof)
	if !ok {
		return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
			{Field: "proof", Message: fmt.Sprintf("expected *proof.NoirProof, got %T", native)},
		})
	}
	if opts.ValidateBeforeConversion {
		if report := c.ValidateNative(noir); !report.Valid {
			return nil, invalidInput(proof.SystemNoir, report.Errors)
		}
	}
	if !versionSupported(noir.Version, c.supported) {
		return nil, proof.NewUnsupportedVersionError(proof.SystemNoir, noir.Version, c.supported)
	}
	if len(noir.Proof) == 0 {
		return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
			{Field: "proof", Message: "proof bytes are empty"},
		})
	}
	publicInputs, err := canonicalize(noir.PublicInputs)
	if err != nil {
		return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
			{Field: "public_inputs", Message: err.Error()},
		})
	}

	circuitID := noir.CircuitName
	if circuitID == "" {
		circuitID = "noir-circuit"
	}
	sip := &proof.SingleProof{
		ID:           opts.newID(),
		Proof:        proof.EncodeProofBytes(noir.Proof),
		PublicInputs: publicInputs,
		Metadata: proof.Metadata{
			System:         proof.SystemNoir,
			SystemVersion:  noir.Version,
			CircuitID:      circuitID,
			CircuitVersion: "1",
			GeneratedAt:    nowMilli(),
			ProofSizeBytes: len(noir.Proof),
		},
		Conversion: stamp(proof.SystemNoir, noirConverterVersion, ""),
	}
	if opts.IncludeVerificationKey && len(noir.VerificationKey) > 0 {
		sip.VerificationKey = hexutil.Encode(noir.VerificationKey)
	}
	return sip, nil
}

// FromSIP implements Converter.
func (c *NoirConverter) FromSIP(sip *proof.SingleProof, opts Options) (proof.NativeProof, error) {
	if !c.CanConvertFromSIP(sip) {
		system := proof.System("")
		if sip != nil {
			system = sip.Metadata.System
		}
		return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
			{Field: "metadata.system", Message: fmt.Sprintf("expected %q, got %q", proof.SystemNoir, system)},
		})
	}
	raw, err := proof.DecodeProofBytes(sip.Proof)
	if err != nil {
		return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
			{Field: "proof", Message: err.Error()},
		})
	}
	inputs := make([]string, 0, len(sip.PublicInputs))
	for _, in := range sip.PublicInputs {
		decimal, err := proof.ToDecimal(in)
		if err != nil {
			return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
				{Field: "public_inputs", Message: err.Error()},
			})
		}
		inputs = append(inputs, decimal)
	}
	native := &proof.NoirProof{
		Proof:        raw,
		PublicInputs: inputs,
		Version:      sip.Metadata.SystemVersion,
		CircuitName:  sip.Metadata.CircuitID,
	}
	if sip.VerificationKey != "" {
		vk, err := hexutil.Decode(sip.VerificationKey)
		if err != nil {
			return nil, invalidInput(proof.SystemNoir, []proof.FieldError{
				{Field: "verification_key", Message: err.Error()},
			})
		}
		native.VerificationKey = vk
	}
	if opts.PreserveNativeMetadata {
		native.SourceRef = sip.ID
	}
	return native, nil
}

// ValidateNative implements Converter.
func (c *NoirConverter) ValidateNative(native proof.NativeProof) ValidationReport {
	report := ValidationReport{Valid: true}
	noir, ok := native.(*proof.NoirProof)
	if !ok {
		report.addError("proof", fmt.Sprintf("expected *proof.NoirProof, got %T", native))
		return report
	}
	if len(noir.Proof) == 0 {
		report.addError("proof", "proof bytes are empty")
	}
	for i, in := range noir.PublicInputs {
		if err := proof.WithinField(in, proof.SystemNoir); err != nil {
			report.addError(fmt.Sprintf("public_inputs[%d]", i), err.Error())
		}
	}
	if noir.Version == "" {
		report.addError("version", "native tool version is required")
	}
	if noir.CircuitName == "" {
		report.addWarning("circuit name is missing, circuit id will default to noir-circuit")
	}
	if len(noir.VerificationKey) == 0 {
		report.addWarning("verification key is missing")
	}
	return report
}
