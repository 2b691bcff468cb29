// Package diagnostics provides operator-facing reporting: set differences
// between local and container credential collections, and human-readable
// rendering of attestation-shaped payloads. Pure functions, no side effects.
package diagnostics

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/webauthnai/DogTagClient-sub000/internal/attest"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
)

// Diff is the identifier-set algebra for one record kind: identifiers
// present on both sides, only locally, or only in the container. Every
// slice is sorted for stable reporting.
type Diff struct {
	Duplicates    []string
	LocalOnly     []string
	ContainerOnly []string
}

// Report holds the diff for both record kinds.
type Report struct {
	Client Diff
	Server Diff
}

// Compare computes the identifier-set differences between a local and a
// container credential collection, for client and server records.
func Compare(localClients, containerClients []models.ClientCredential, localServers, containerServers []models.ServerCredential) Report {
	return Report{
		Client: diffIDs(clientIDs(localClients), clientIDs(containerClients)),
		Server: diffIDs(serverIDs(localServers), serverIDs(containerServers)),
	}
}

func clientIDs(creds []models.ClientCredential) []string {
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	return ids
}

func serverIDs(creds []models.ServerCredential) []string {
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	return ids
}

func diffIDs(local, container []string) Diff {
	localSet := make(map[string]struct{}, len(local))
	for _, id := range local {
		localSet[id] = struct{}{}
	}
	containerSet := make(map[string]struct{}, len(container))
	for _, id := range container {
		containerSet[id] = struct{}{}
	}

	d := Diff{}
	for id := range localSet {
		if _, ok := containerSet[id]; ok {
			d.Duplicates = append(d.Duplicates, id)
		} else {
			d.LocalOnly = append(d.LocalOnly, id)
		}
	}
	for id := range containerSet {
		if _, ok := localSet[id]; !ok {
			d.ContainerOnly = append(d.ContainerOnly, id)
		}
	}

	sort.Strings(d.Duplicates)
	sort.Strings(d.LocalOnly)
	sort.Strings(d.ContainerOnly)
	return d
}

// AttestationPayload builds the attestation object a relying party would
// have received for the credential, reconstructed from its stored public
// key. Used for operator inspection and cold-storage representations.
func AttestationPayload(c *models.ClientCredential, modelID uuid.UUID) ([]byte, error) {
	x, y, err := attest.ParseUncompressedPoint(c.PublicKey)
	if err != nil {
		return nil, err
	}
	coseKey, err := attest.EncodeCOSEKey(x, y)
	if err != nil {
		return nil, err
	}

	flags := attest.FlagUserPresent | attest.FlagUserVerified | attest.FlagAttestedCredentialData
	authData, err := attest.EncodeAuthenticatorData(c.RelyingParty, flags, c.SignCount, modelID, []byte(c.ID), coseKey)
	if err != nil {
		return nil, err
	}
	return attest.EncodeAttestationObject(authData)
}

// DescribeAttestation renders an attestation object for operator display.
func DescribeAttestation(raw []byte) (string, error) {
	obj, err := attest.DecodeAttestationObject(raw)
	if err != nil {
		return "", err
	}
	ad, err := attest.DecodeAuthenticatorData(obj.AuthData)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "format:        %s\n", obj.Format)
	fmt.Fprintf(&b, "rp id hash:    %s\n", hex.EncodeToString(ad.RPIDHash))
	fmt.Fprintf(&b, "flags:         %s\n", flagNames(ad.Flags))
	fmt.Fprintf(&b, "sign count:    %d\n", ad.SignCount)

	if ad.Flags&attest.FlagAttestedCredentialData != 0 {
		fmt.Fprintf(&b, "model id:      %s\n", ad.ModelID)
		fmt.Fprintf(&b, "credential id: %s\n", string(ad.CredentialID))
		if k, err := attest.DecodeCOSEKey(ad.COSEKey); err == nil {
			fmt.Fprintf(&b, "public key:    kty=%d alg=%d crv=%d x=%s y=%s\n",
				k.Kty, k.Alg, k.Crv, hex.EncodeToString(k.X), hex.EncodeToString(k.Y))
		}
	}
	return b.String(), nil
}

func flagNames(flags byte) string {
	var names []string
	for _, f := range []struct {
		bit  byte
		name string
	}{
		{attest.FlagUserPresent, "UP"},
		{attest.FlagUserVerified, "UV"},
		{attest.FlagBackupEligible, "BE"},
		{attest.FlagBackupState, "BS"},
		{attest.FlagAttestedCredentialData, "AT"},
		{attest.FlagExtensionData, "ED"},
	} {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
