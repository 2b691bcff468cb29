// Package models defines the vault-side data models: containers and the
// client/server credential records that move between the active store and
// portable containers.
package models

import "time"

// ClientCredential is an authenticator-side credential record.
//
// A credential may legitimately exist both in the local store and in a
// container after an export; that duplication is expected and detectable,
// not a consistency violation.
type ClientCredential struct {
	// ID is the opaque credential identifier (relying-party assigned or
	// generated). Identity equality across stores is by this string.
	ID string

	// RelyingParty is the RP identifier the credential was issued for.
	RelyingParty string

	// UserHandle is the RP-scoped user handle bytes, base64url encoded.
	UserHandle string

	// UserDisplayName is the human-readable account label.
	UserDisplayName string

	// PublicKey holds the credential public key bytes (65-byte
	// uncompressed P-256 point).
	PublicKey []byte

	// PrivateKeyRef is a base64 reference to the encrypted private key
	// blob. A record without a decodable reference cannot authenticate
	// and is skipped on import.
	PrivateKeyRef string

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time

	// LastUsedAt is the last assertion time in UTC.
	LastUsedAt time.Time

	// SignCount is the authenticator usage counter.
	SignCount uint32

	// IsResident marks a discoverable (resident) credential.
	IsResident bool
}

// ServerCredential mirrors the relying-party-side metadata of a credential.
// Every field round-trips through export/import unchanged; none may be
// defaulted away during transfer.
type ServerCredential struct {
	// ID matches the client credential identifier.
	ID string

	// PublicKeyJWK is the public key in its JWK-like JSON form.
	PublicKeyJWK string

	// SignCount is the RP-observed usage counter.
	SignCount uint32

	// Username is the account name at the RP.
	Username string

	// Algorithm is the COSE algorithm identifier (ES256 = -7).
	Algorithm int

	// Protocol tags the credential protocol version (e.g. "fido2").
	Protocol string

	// AttestationFormat tags the attestation format (e.g. "none").
	AttestationFormat string

	// ModelID is the 16-byte authenticator model identifier, stored as a
	// canonical uuid string.
	ModelID string

	// IsDiscoverable marks a client-side discoverable credential.
	IsDiscoverable bool

	// BackupEligible and BackupState carry the authenticator backup flags.
	BackupEligible bool
	BackupState    bool

	// Emoji is the display emoji chosen for the account.
	Emoji string

	// LastLoginIP and LastLoginAt record the most recent login.
	LastLoginIP string
	LastLoginAt time.Time

	// IsEnabled and IsAdmin are RP account flags.
	IsEnabled bool
	IsAdmin   bool

	// UserNumber is the stable user ordinal at the RP.
	UserNumber int64
}
