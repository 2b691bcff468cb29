// Package attest encodes and decodes the binary authenticator structures a
// WebAuthn-compatible relying party verifies byte-for-byte: COSE EC2 public
// keys, authenticator data, and CBOR attestation objects. All functions are
// pure; no I/O.
package attest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/webauthnai/DogTagClient-sub000/internal/common"
)

// COSE map labels and values for an ES256 P-256 key (RFC 9052/9053).
const (
	coseLabelKty = 1
	coseLabelAlg = 3
	coseLabelCrv = -1
	coseLabelX   = -2
	coseLabelY   = -3

	coseKtyEC2   = 2
	coseAlgES256 = -7
	coseCrvP256  = 1
)

const coordinateSize = 32

// encMode is the CTAP2 canonical encoding mode. CTAP2 canonical form sorts
// map keys bytewise, which yields exactly the key order relying parties
// expect for COSE keys and attestation objects.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// COSEKey is the decoded form of a COSE EC2 public key map.
type COSEKey struct {
	Kty int    `cbor:"1,keyasint"`
	Alg int    `cbor:"3,keyasint"`
	Crv int    `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

// EncodeCOSEKey builds the canonical 5-entry COSE map
// {kty: EC2, alg: ES256, crv: P-256, x, y} for the given curve point
// coordinates. Both coordinates must be exactly 32 bytes.
func EncodeCOSEKey(x, y []byte) ([]byte, error) {
	if len(x) != coordinateSize || len(y) != coordinateSize {
		return nil, fmt.Errorf("%w: got x=%d y=%d", common.ErrInvalidCoordinate, len(x), len(y))
	}

	m := map[int]any{
		coseLabelKty: coseKtyEC2,
		coseLabelAlg: coseAlgES256,
		coseLabelCrv: coseCrvP256,
		coseLabelX:   x,
		coseLabelY:   y,
	}
	return encMode.Marshal(m)
}

// DecodeCOSEKey parses a COSE EC2 key map produced by EncodeCOSEKey or by
// another conformant authenticator.
func DecodeCOSEKey(data []byte) (*COSEKey, error) {
	var k COSEKey
	if err := cbor.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("decode COSE key: %w", err)
	}
	return &k, nil
}

// ParseUncompressedPoint splits a 65-byte uncompressed P-256 point
// (0x04 ‖ X ‖ Y) into its coordinates. Any other length or leading byte is
// rejected; the zero-filled-coordinate fallback of older builds produced
// attestation output that could never verify.
func ParseUncompressedPoint(pub []byte) (x, y []byte, err error) {
	if len(pub) != 1+2*coordinateSize || pub[0] != 0x04 {
		return nil, nil, fmt.Errorf("%w: got %d bytes", common.ErrInvalidPublicKey, len(pub))
	}
	return pub[1 : 1+coordinateSize], pub[1+coordinateSize:], nil
}
