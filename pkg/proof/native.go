package proof

// NativeProof is the system-specific representation of a proof before it is
// re-encoded into the canonical SIP format. Each variant carries its system
// discriminator, raw proof bytes and natively encoded public inputs.
type NativeProof interface {
	// NativeSystem returns the discriminator tag of the variant.
	NativeSystem() System
	// RawProof returns the raw proof bytes.
	RawProof() []byte
	// RawPublicInputs returns the public inputs in native encoding
	// (decimal field strings for Noir, hex for Halo2 and Kimchi).
	RawPublicInputs() []string
	// ToolVersion returns the native toolchain version that produced the proof.
	ToolVersion() string
}

// NoirProof is a proof produced by the Noir/Barretenberg toolchain.
// Public inputs are decimal field-element strings over the BN254 scalar field.
type NoirProof struct {
	Proof           []byte   `json:"proof"`
	PublicInputs    []string `json:"public_inputs"`
	Version         string   `json:"version"`
	CircuitName     string   `json:"circuit_name,omitempty"`
	VerificationKey []byte   `json:"verification_key,omitempty"`
	// SourceRef back-references the SIP proof the native proof was
	// reconstructed from, when metadata preservation is requested.
	SourceRef string `json:"source_ref,omitempty"`
}

func (p *NoirProof) NativeSystem() System      { return SystemNoir }
func (p *NoirProof) RawProof() []byte          { return p.Proof }
func (p *NoirProof) RawPublicInputs() []string { return p.PublicInputs }
func (p *NoirProof) ToolVersion() string       { return p.Version }

// Halo2Proof is a proof produced by a Halo2 prover over the Pasta curves.
// Instances are 0x-prefixed hex field elements; K is the log2 circuit size
// used for the polynomial commitment setup.
type Halo2Proof struct {
	Proof           []byte   `json:"proof"`
	Instances       []string `json:"instances"`
	K               uint32   `json:"k"`
	Version         string   `json:"version"`
	CircuitHash     string   `json:"circuit_hash,omitempty"`
	VerificationKey []byte   `json:"verification_key,omitempty"`
	SourceRef       string   `json:"source_ref,omitempty"`
}

func (p *Halo2Proof) NativeSystem() System      { return SystemHalo2 }
func (p *Halo2Proof) RawProof() []byte          { return p.Proof }
func (p *Halo2Proof) RawPublicInputs() []string { return p.Instances }
func (p *Halo2Proof) ToolVersion() string       { return p.Version }

// KimchiProof is a proof produced by the Kimchi (Mina) prover.
// Public inputs are 0x-prefixed hex Pallas field elements; SRSHash pins the
// structured reference string the proof was generated against.
type KimchiProof struct {
	Proof           []byte   `json:"proof"`
	PublicInputs    []string `json:"public_inputs"`
	SRSHash         string   `json:"srs_hash"`
	Version         string   `json:"version"`
	VerifierIndex   []byte   `json:"verifier_index,omitempty"`
	SourceRef       string   `json:"source_ref,omitempty"`
}

func (p *KimchiProof) NativeSystem() System      { return SystemKimchi }
func (p *KimchiProof) RawProof() []byte          { return p.Proof }
func (p *KimchiProof) RawPublicInputs() []string { return p.PublicInputs }
func (p *KimchiProof) ToolVersion() string       { return p.Version }
