package model

import "errors"

var (
	// ErrInvalidArgument marks input rejected before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreFailure wraps database errors surfaced to callers.
	ErrStoreFailure = errors.New("store failure")
	// ErrBackupFailure wraps errors from the backup hook.
	ErrBackupFailure = errors.New("backup failure")
)
