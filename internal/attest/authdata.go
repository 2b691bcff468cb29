package attest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Authenticator data flag bits (WebAuthn §6.1).
const (
	FlagUserPresent            = byte(1)
	FlagUserVerified           = byte(1 << 2)
	FlagBackupEligible         = byte(1 << 3)
	FlagBackupState            = byte(1 << 4)
	FlagAttestedCredentialData = byte(1 << 6)
	FlagExtensionData          = byte(1 << 7)
)

const maxCredentialIDLen = 0xFFFF

// EncodeAuthenticatorData produces the fixed-layout authenticator data
// structure: SHA-256(rpID) ‖ flags ‖ big-endian 32-bit counter, followed by
// the attested credential data block (model id ‖ 16-bit credential id
// length ‖ credential id ‖ COSE key) when FlagAttestedCredentialData is set.
func EncodeAuthenticatorData(rpID string, flags byte, counter uint32, modelID uuid.UUID, credentialID []byte, cosePublicKey []byte) ([]byte, error) {
	rpHash := sha256.Sum256([]byte(rpID))

	out := make([]byte, 0, len(rpHash)+5+len(modelID)+2+len(credentialID)+len(cosePublicKey))
	out = append(out, rpHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, counter)

	if flags&FlagAttestedCredentialData == 0 {
		return out, nil
	}

	if len(credentialID) == 0 || len(credentialID) > maxCredentialIDLen {
		return nil, fmt.Errorf("credential id length %d out of range", len(credentialID))
	}

	out = append(out, modelID[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(credentialID)))
	out = append(out, credentialID...)
	out = append(out, cosePublicKey...)
	return out, nil
}

// AuthenticatorData is the parsed form of the structure produced by
// EncodeAuthenticatorData. COSEKey holds the raw CBOR bytes of the attested
// public key, if present.
type AuthenticatorData struct {
	RPIDHash     []byte
	Flags        byte
	SignCount    uint32
	ModelID      uuid.UUID
	CredentialID []byte
	COSEKey      []byte
}

const authDataHeaderLen = 32 + 1 + 4

// DecodeAuthenticatorData parses authenticator data bytes. The attested
// credential data block is decoded only when its flag is set.
func DecodeAuthenticatorData(data []byte) (*AuthenticatorData, error) {
	if len(data) < authDataHeaderLen {
		return nil, fmt.Errorf("authenticator data too short: %d bytes", len(data))
	}

	ad := &AuthenticatorData{
		RPIDHash:  data[:32],
		Flags:     data[32],
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	if ad.Flags&FlagAttestedCredentialData == 0 {
		return ad, nil
	}

	rest := data[authDataHeaderLen:]
	if len(rest) < 16+2 {
		return nil, fmt.Errorf("attested credential data truncated: %d bytes", len(rest))
	}
	modelID, err := uuid.FromBytes(rest[:16])
	if err != nil {
		return nil, err
	}
	ad.ModelID = modelID

	idLen := int(binary.BigEndian.Uint16(rest[16:18]))
	if len(rest[18:]) < idLen {
		return nil, fmt.Errorf("credential id truncated: want %d bytes, have %d", idLen, len(rest[18:]))
	}
	ad.CredentialID = rest[18 : 18+idLen]
	ad.COSEKey = rest[18+idLen:]
	return ad, nil
}
