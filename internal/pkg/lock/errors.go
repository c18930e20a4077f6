package lock

import "errors"

// Lock-related errors.
var (
	// ErrBusy is returned when a participant is already in another balance operation.
	ErrBusy = errors.New("user is busy with another operation")
)
