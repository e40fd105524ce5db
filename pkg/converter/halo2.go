package converter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"SIP-Compose/pkg/proof"
)

const halo2ConverterVersion = "1.0.0"

// Halo2Converter translates between Halo2 native proofs and the canonical
// SIP format. The circuit parameter K is folded into the circuit id using
// the halo2-k<K>-<hash> convention so FromSIP can reconstruct it.
type Halo2Converter struct {
	supported []string
}

// NewHalo2Converter returns a converter accepting the given native tool
// versions.
func NewHalo2Converter(supportedVersions ...string) *Halo2Converter {
	if len(supportedVersions) == 0 {
		supportedVersions = []string{"0.3.0", "0.3.1"}
	}
	return &Halo2Converter{supported: supportedVersions}
}

// System implements Converter.
func (c *Halo2Converter) System() proof.System { return proof.SystemHalo2 }

// Version implements Converter.
func (c *Halo2Converter) Version() string { return halo2ConverterVersion }

// SupportedVersions implements Converter.
func (c *Halo2Converter) SupportedVersions() []string {
	return append([]string(nil), c.supported...)
}

// CanConvertFromSIP implements Converter.
func (c *Halo2Converter) CanConvertFromSIP(sip *proof.SingleProof) bool {
	return sip != nil && sip.Metadata.System == proof.SystemHalo2
}

// halo2CircuitID encodes K and the circuit hash into the circuit id.
func halo2CircuitID(k uint32, hash string) string {
	if hash == "" {
		hash = "unknown"
	}
	return fmt.Sprintf("halo2-k%d-%s", k, hash)
}

// parseHalo2CircuitID recovers K and the circuit hash from a circuit id
// following the halo2-k<K>-<hash> convention.
func parseHalo2CircuitID(circuitID string) (uint32, string, error) {
	rest, ok := strings.CutPrefix(circuitID, "halo2-k")
	if !ok {
		return 0, "", fmt.Errorf("circuit id %q does not follow the halo2-k<K>-<hash> convention", circuitID)
	}
	kDigits, hash, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, "", fmt.Errorf("circuit id %q is missing the circuit hash", circuitID)
	}
	k, err := strconv.ParseUint(kDigits, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("circuit id %q carries a malformed K: %w", circuitID, err)
	}
	return uint32(k), hash, nil
}

// ToSIP implements Converter.
func (c *Halo2Converter) ToSIP(native proof.NativeProof, opts Options) (*proof.SingleProof, error) {
	halo2, ok := native.(*proof.Halo2Proof)
	if !ok {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "proof", Message: fmt.Sprintf("expected *proof.Halo2Proof, got %T", native)},
		})
	}
	if opts.ValidateBeforeConversion {
		if report := c.ValidateNative(halo2); !report.Valid {
			return nil, invalidInput(proof.SystemHalo2, report.Errors)
		}
	}
	if !versionSupported(halo2.Version, c.supported) {
		return nil, proof.NewUnsupportedVersionError(proof.SystemHalo2, halo2.Version, c.supported)
	}
	if len(halo2.Proof) == 0 {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "proof", Message: "proof bytes are empty"},
		})
	}
	instances, err := canonicalize(halo2.Instances)
	if err != nil {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "instances", Message: err.Error()},
		})
	}

	sip := &proof.SingleProof{
		ID:           opts.newID(),
		Proof:        proof.EncodeProofBytes(halo2.Proof),
		PublicInputs: instances,
		Metadata: proof.Metadata{
			System:         proof.SystemHalo2,
			SystemVersion:  halo2.Version,
			CircuitID:      halo2CircuitID(halo2.K, halo2.CircuitHash),
			CircuitVersion: "1",
			GeneratedAt:    nowMilli(),
			ProofSizeBytes: len(halo2.Proof),
		},
		Conversion: stamp(proof.SystemHalo2, halo2ConverterVersion, ""),
	}
	if opts.IncludeVerificationKey && len(halo2.VerificationKey) > 0 {
		sip.VerificationKey = hexutil.Encode(halo2.VerificationKey)
	}
	return sip, nil
}

// FromSIP implements Converter.
func (c *Halo2Converter) FromSIP(sip *proof.SingleProof, opts Options) (proof.NativeProof, error) {
	if !c.CanConvertFromSIP(sip) {
		system := proof.System("")
		if sip != nil {
			system = sip.Metadata.System
		}
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "metadata.system", Message: fmt.Sprintf("expected %q, got %q", proof.SystemHalo2, system)},
		})
	}
	raw, err := proof.DecodeProofBytes(sip.Proof)
	if err != nil {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "proof", Message: err.Error()},
		})
	}
	k, hash, err := parseHalo2CircuitID(sip.Metadata.CircuitID)
	if err != nil {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "metadata.circuit_id", Message: err.Error()},
		})
	}
	instances, err := canonicalize(sip.PublicInputs)
	if err != nil {
		return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
			{Field: "public_inputs", Message: err.Error()},
		})
	}
	native := &proof.Halo2Proof{
		Proof:       raw,
		Instances:   instances,
		K:           k,
		Version:     sip.Metadata.SystemVersion,
		CircuitHash: hash,
	}
	if sip.VerificationKey != "" {
		vk, err := hexutil.Decode(sip.VerificationKey)
		if err != nil {
			return nil, invalidInput(proof.SystemHalo2, []proof.FieldError{
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
func (c *Halo2Converter) ValidateNative(native proof.NativeProof) ValidationReport {
	report := ValidationReport{Valid: true}
	halo2, ok := native.(*proof.Halo2Proof)
	if !ok {
		report.addError("proof", fmt.Sprintf("expected *proof.Halo2Proof, got %T", native))
		return report
	}
	if len(halo2.Proof) == 0 {
		report.addError("proof", "proof bytes are empty")
	}
	if halo2.K == 0 {
		report.addError("k", "circuit parameter K is required")
	}
	for i, in := range halo2.Instances {
		if err := proof.WithinField(in, proof.SystemHalo2); err != nil {
			report.addError(fmt.Sprintf("instances[%d]", i), err.Error())
		}
	}
	if halo2.Version == "" {
		report.addError("version", "native tool version is required")
	}
	if halo2.CircuitHash == "" {
		report.addWarning("circuit hash is missing, circuit id will carry the placeholder hash")
	}
	if len(halo2.VerificationKey) == 0 {
		report.addWarning("verification key is missing")
	}
	return report
}
