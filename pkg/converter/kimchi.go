package converter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"SIP-Compose/pkg/proof"
)

const (
	kimchiConverterVersion = "1.0.0"

	// annotationSRSHash keys the Kimchi SRS hash inside SIP annotations so
	// FromSIP can pin the proof back to its reference string.
	annotationSRSHash = "kimchi_srs_hash"
)

// KimchiConverter translates between Kimchi (Mina) native proofs and the
// canonical SIP format. Public inputs are Pallas scalar field elements.
type KimchiConverter struct {
	supported []string
}

// NewKimchiConverter returns a converter accepting the given native tool
// versions.
func NewKimchiConverter(supportedVersions ...string) *KimchiConverter {
	if len(supportedVersions) == 0 {
		supportedVersions = []string{"0.1.0", "0.2.0"}
	}
	return &KimchiConverter{supported: supportedVersions}
}

// System implements Converter.
func (c *KimchiConverter) System() proof.System { return proof.SystemKimchi }

// Version implements Converter.
func (c *KimchiConverter) Version() string { return kimchiConverterVersion }

// SupportedVersions implements Converter.
func (c *KimchiConverter) SupportedVersions() []string {
	return append([]string(nil), c.supported...)
}

// CanConvertFromSIP implements Converter.
func (c *KimchiConverter) CanConvertFromSIP(sip *proof.SingleProof) bool {
	return sip != nil && sip.Metadata.System == proof.SystemKimchi
}

// ToSIP implements Converter.
func (c *KimchiConverter) ToSIP(native proof.NativeProof, opts Options) (*proof.SingleProof, error) {
	kimchi, ok := native.(*proof.KimchiProof)
	if !ok {
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "proof", Message: fmt.Sprintf("expected *proof.KimchiProof, got %T", native)},
		})
	}
	if opts.ValidateBeforeConversion {
		if report := c.ValidateNative(kimchi); !report.Valid {
			return nil, invalidInput(proof.SystemKimchi, report.Errors)
		}
	}
	if !versionSupported(kimchi.Version, c.supported) {
		return nil, proof.NewUnsupportedVersionError(proof.SystemKimchi, kimchi.Version, c.supported)
	}
	if len(kimchi.Proof) == 0 {
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "proof", Message: "proof bytes are empty"},
		})
	}
	publicInputs, err := canonicalize(kimchi.PublicInputs)
	if err != nil {
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "public_inputs", Message: err.Error()},
		})
	}

	sip := &proof.SingleProof{
		ID:           opts.newID(),
		Proof:        proof.EncodeProofBytes(kimchi.Proof),
		PublicInputs: publicInputs,
		Metadata: proof.Metadata{
			System:         proof.SystemKimchi,
			SystemVersion:  kimchi.Version,
			CircuitID:      "kimchi-circuit",
			CircuitVersion: "1",
			GeneratedAt:    nowMilli(),
			ProofSizeBytes: len(kimchi.Proof),
		},
		Conversion: stamp(proof.SystemKimchi, kimchiConverterVersion, ""),
	}
	if kimchi.SRSHash != "" {
		sip.Annotations = map[string]string{annotationSRSHash: kimchi.SRSHash}
	}
	if opts.IncludeVerificationKey && len(kimchi.VerifierIndex) > 0 {
		sip.VerificationKey = hexutil.Encode(kimchi.VerifierIndex)
	}
	return sip, nil
}

// FromSIP implements Converter.
func (c *KimchiConverter) FromSIP(sip *proof.SingleProof, opts Options) (proof.NativeProof, error) {
	if !c.CanConvertFromSIP(sip) {
		system := proof.System("")
		if sip != nil {
			system = sip.Metadata.System
		}
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "metadata.system", Message: fmt.Sprintf("expected %q, got %q", proof.SystemKimchi, system)},
		})
	}
	raw, err := proof.DecodeProofBytes(sip.Proof)
	if err != nil {
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "proof", Message: err.Error()},
		})
	}
	publicInputs, err := canonicalize(sip.PublicInputs)
	if err != nil {
		return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
			{Field: "public_inputs", Message: err.Error()},
		})
	}
	native := &proof.KimchiProof{
		Proof:        raw,
		PublicInputs: publicInputs,
		SRSHash:      sip.Annotations[annotationSRSHash],
		Version:      sip.Metadata.SystemVersion,
	}
	if sip.VerificationKey != "" {
		index, err := hexutil.Decode(sip.VerificationKey)
		if err != nil {
			return nil, invalidInput(proof.SystemKimchi, []proof.FieldError{
				{Field: "verification_key", Message: err.Error()},
			})
		}
		native.VerifierIndex = index
	}
	if opts.PreserveNativeMetadata {
		native.SourceRef = sip.ID
	}
	return native, nil
}

// ValidateNative implements Converter.
func (c *KimchiConverter) ValidateNative(native proof.NativeProof) ValidationReport {
	report := ValidationReport{Valid: true}
	kimchi, ok := native.(*proof.KimchiProof)
	if !ok {
		report.addError("proof", fmt.Sprintf("expected *proof.KimchiProof, got %T", native))
		return report
	}
	if len(kimchi.Proof) == 0 {
		report.addError("proof", "proof bytes are empty")
	}
	for i, in := range kimchi.PublicInputs {
		if err := proof.WithinField(in, proof.SystemKimchi); err != nil {
			report.addError(fmt.Sprintf("public_inputs[%d]", i), err.Error())
		}
	}
	if kimchi.Version == "" {
		report.addError("version", "native tool version is required")
	}
	if kimchi.SRSHash == "" {
		report.addWarning("SRS hash is missing, the proof cannot be pinned to a reference string")
	}
	if len(kimchi.VerifierIndex) == 0 {
		report.addWarning("verifier index is missing")
	}
	return report
}
