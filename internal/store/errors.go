package store

import "github.com/voxbookapp/voxbook-server/internal/errors"

// Sentinel errors returned by store operations. They reuse the shared
// application error values, so handlers translate them to HTTP statuses
// without a store-specific mapping layer.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.ErrNotFound

	// ErrAlreadyExists is returned when creating a record whose key or
	// unique index value is already taken.
	ErrAlreadyExists = errors.ErrAlreadyExists
)
