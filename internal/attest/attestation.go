package attest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// AttestationObject is the decoded {fmt, attStmt, authData} structure.
type AttestationObject struct {
	Format       string         `cbor:"fmt"`
	AttStatement map[string]any `cbor:"attStmt"`
	AuthData     []byte         `cbor:"authData"`
}

// EncodeAttestationObject wraps authenticator data in a "none"-format
// attestation object: a three-entry CBOR map (header 0xA3) with text-string
// keys fmt, attStmt, authData in exactly that order, an empty attStmt map,
// and authData as a byte string.
func EncodeAttestationObject(authData []byte) ([]byte, error) {
	m := map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	}
	return encMode.Marshal(m)
}

// DecodeAttestationObject parses an attestation object into its typed form.
func DecodeAttestationObject(data []byte) (*AttestationObject, error) {
	var o AttestationObject
	if err := cbor.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode attestation object: %w", err)
	}
	return &o, nil
}

// DecodeCBOR parses an arbitrary CBOR value into Go maps, slices, integers,
// byte strings and text strings. Used to validate this package's own output
// and to interpret attestation payloads read back from a container.
func DecodeCBOR(data []byte) (any, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	return v, nil
}
