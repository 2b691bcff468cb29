package models

import "time"

// Container describes one portable credential container: an independently
// mountable encrypted or plain volume holding an embedded credential store.
type Container struct {
	// ID is derived deterministically from Path; it is stable across
	// process restarts.
	ID string

	// Name is the display name (the container file name without its
	// extension).
	Name string

	// Path is the absolute location of the container file.
	Path string

	// CreatedAt is the on-disk creation (or earliest known) time.
	CreatedAt time.Time

	// LastAccessedAt is the most recent mount/export/import time, from
	// the metadata cache.
	LastAccessedAt time.Time

	// IsLocked reports whether the container requires a passphrase to
	// mount.
	IsLocked bool

	// CredentialCount is the cached number of client credentials inside.
	// A count of 0 may mean "unknown" when the store could not be probed;
	// listing never fails on a bad count.
	CredentialCount int
}
