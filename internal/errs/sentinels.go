// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/gateway/reconciler layers.
var (
	// ErrNotFound indicates the requested record does not exist (cache miss or RemoteNotFound).
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates a record, patch or filter failed validation.
	ErrInvalid = errors.New("validation")

	// ErrUnknownKind indicates an entity kind missing from the registry.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrConnectivityAmbiguous indicates a connectivity probe that neither succeeded nor
	// failed cleanly. It is always treated as offline.
	ErrConnectivityAmbiguous = errors.New("connectivity ambiguous")

	// ErrStorage indicates a local cache/queue I/O failure. It is never the same as an empty cache.
	ErrStorage = errors.New("storage error")

	// ErrRemoteRejected indicates the backend declined a write (constraint, permission).
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrRemoteUnavailable indicates a transport-level remote failure (dial, timeout, closed pool).
	ErrRemoteUnavailable = errors.New("remote unavailable")
)
