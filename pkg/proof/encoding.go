package proof

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Pasta curve moduli, used for structural bounds checks on Halo2 and Kimchi
// public inputs. Halo2 instances live in the Pallas base field, Kimchi public
// inputs in the Pallas scalar field.
var (
	pallasBaseModulus, _   = new(big.Int).SetString("40000000000000000000000000000000224698fc094cf91b992d30ed00000001", 16)
	pallasScalarModulus, _ = new(big.Int).SetString("40000000000000000000000000000000224698fc0994a8dd8c46eb2100000001", 16)
)

// FieldModulus returns the field modulus public inputs of the given system
// must stay below.
func FieldModulus(system System) *big.Int {
	switch system {
	case SystemHalo2:
		return new(big.Int).Set(pallasBaseModulus)
	case SystemKimchi:
		return new(big.Int).Set(pallasScalarModulus)
	default:
		// Noir, Groth16 and PLONK all prove over the BN254 scalar field.
		return fr.Modulus()
	}
}

// ParseFieldElement parses a native public input, accepting 0x-prefixed hex
// or decimal encodings.
func ParseFieldElement(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty field element")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		v, ok := new(big.Int).SetString(trimmed[2:], 16)
		if !ok {
			return nil, fmt.Errorf("malformed hex field element %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("malformed decimal field element %q", s)
	}
	return v, nil
}

// WithinField reports whether a native public input parses and stays below
// the system's field modulus.
func WithinField(s string, system System) error {
	v, err := ParseFieldElement(s)
	if err != nil {
		return err
	}
	if v.Sign() < 0 {
		return fmt.Errorf("field element %q is negative", s)
	}
	if v.Cmp(FieldModulus(system)) >= 0 {
		return fmt.Errorf("field element %q exceeds the %s field modulus", s, system)
	}
	return nil
}

// CanonicalHex canonicalizes an arbitrary public input value into the
// 0x-prefixed hex encoding used by the SIP wire format.
func CanonicalHex(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", fmt.Errorf("nil public input")
	case string:
		parsed, err := ParseFieldElement(v)
		if err != nil {
			return "", err
		}
		return hexutil.EncodeBig(parsed), nil
	case []byte:
		if len(v) == 0 {
			return "", fmt.Errorf("empty byte public input")
		}
		return hexutil.Encode(v), nil
	case bool:
		if v {
			return "0x1", nil
		}
		return "0x0", nil
	case int:
		return encodeSigned(int64(v))
	case int32:
		return encodeSigned(int64(v))
	case int64:
		return encodeSigned(v)
	case uint:
		return hexutil.EncodeUint64(uint64(v)), nil
	case uint32:
		return hexutil.EncodeUint64(uint64(v)), nil
	case uint64:
		return hexutil.EncodeUint64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return "", fmt.Errorf("non-integral public input %v", v)
		}
		return encodeSigned(int64(v))
	case *big.Int:
		if v == nil {
			return "", fmt.Errorf("nil big.Int public input")
		}
		if v.Sign() < 0 {
			return "", fmt.Errorf("negative public input %s", v)
		}
		return hexutil.EncodeBig(v), nil
	default:
		return "", fmt.Errorf("unsupported public input type %T", value)
	}
}

func encodeSigned(v int64) (string, error) {
	if v < 0 {
		return "", fmt.Errorf("negative public input %d", v)
	}
	return hexutil.EncodeUint64(uint64(v)), nil
}

// CanonicalInputs canonicalizes a named input map into hex values ordered by
// key, giving a deterministic wire layout.
func CanonicalInputs(inputs map[string]any) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		encoded, err := CanonicalHex(inputs[k])
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", k, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

// ToDecimal re-encodes a canonical hex value as a decimal field string, the
// native encoding Noir expects.
func ToDecimal(hexValue string) (string, error) {
	v, err := ParseFieldElement(hexValue)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// ToCanonical re-encodes a native public input (hex or decimal) into the
// canonical 0x-prefixed hex form.
func ToCanonical(native string) (string, error) {
	v, err := ParseFieldElement(native)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(v), nil
}

// ValueEquivalent reports whether two encodings denote the same field value
// regardless of base.
func ValueEquivalent(a, b string) bool {
	va, err := ParseFieldElement(a)
	if err != nil {
		return false
	}
	vb, err := ParseFieldElement(b)
	if err != nil {
		return false
	}
	return va.Cmp(vb) == 0
}

// DecodeProofBytes decodes the canonical hex proof payload.
func DecodeProofBytes(p string) ([]byte, error) {
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("empty proof payload")
	}
	return hexutil.Decode(p)
}

// EncodeProofBytes encodes raw proof bytes into the canonical hex payload.
func EncodeProofBytes(b []byte) string {
	return hexutil.Encode(b)
}
