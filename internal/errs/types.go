package errs

import "fmt"

// StorageError wraps a local storage failure with the failing operation.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err as a StorageError; nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for every StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// RemoteError describes a failed call against the remote data source.
type RemoteError struct {
	Op       string
	Table    string
	Rejected bool // backend answered and declined; false means transport failure
	Err      error
}

func (e *RemoteError) Error() string {
	kind := "unavailable"
	if e.Rejected {
		kind = "rejected"
	}
	return fmt.Sprintf("remote %s %s (%s): %v", e.Op, e.Table, kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is maps RemoteError onto ErrRemoteRejected / ErrRemoteUnavailable.
func (e *RemoteError) Is(target error) bool {
	if e.Rejected {
		return target == ErrRemoteRejected
	}
	return target == ErrRemoteUnavailable
}
