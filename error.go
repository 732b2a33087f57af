package volkv

import "errors"

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrDuplicateKey   = errors.New("key already exists")
	ErrVolumeClosed   = errors.New("volume is closed")
	ErrAlreadyStarted = errors.New("auto-delete worker already started")

	// ErrCorruption covers unreadable node files: wrong discriminator byte,
	// short reads, or field values that violate the on-disk format.
	ErrCorruption = errors.New("node file corrupted")

	// ErrInvariant reports an internal consistency failure. A volume that
	// returns it should be considered unusable.
	ErrInvariant = errors.New("tree invariant violated")
)
