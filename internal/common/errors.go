// Package common defines shared sentinel errors used across the vault
// subsystem. Callers should use errors.Is to match these values; wrapping
// with fmt.Errorf("...: %w", ...) preserves matching while adding context
// such as captured utility stderr.
package common

import "errors"

var (
	// Caller errors.
	ErrAlreadyExists    = errors.New("container already exists")
	ErrNotFound         = errors.New("container not found")
	ErrInvalidDirectory = errors.New("invalid vault directory")

	// External disk-image utility failures. Wrapped errors carry the
	// captured stderr of the failed invocation.
	ErrCreationFailed = errors.New("container creation failed")
	ErrMountFailed    = errors.New("container mount failed")
	ErrUnmountFailed  = errors.New("container unmount failed")

	// Embedded store failures.
	ErrStorageInitFailed = errors.New("storage initialization failed")
	ErrRateLimited       = errors.New("storage operations at capacity")

	// Transfer failures.
	ErrExportFailed = errors.New("credential export failed")
	ErrImportFailed = errors.New("credential import failed")

	// Codec errors.
	ErrInvalidCoordinate = errors.New("coordinate is not 32 bytes")
	ErrInvalidPublicKey  = errors.New("public key is not a 65-byte uncompressed point")
)
