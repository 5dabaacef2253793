package chardev

import "errors"

// Domain errors for the chardev package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, chardev.ErrOutOfRange) {
//	    // no such minor
//	}
var (
	// ErrOutOfRange is returned when opening a minor outside [0, Count).
	ErrOutOfRange = errors.New("chardev: minor out of range")

	// ErrTransferFault is returned when bytes cannot be copied to or from
	// caller-supplied storage.
	ErrTransferFault = errors.New("chardev: transfer fault")

	// ErrAllocationFailure is returned when a device class or node could not
	// be created during Initialize.
	ErrAllocationFailure = errors.New("chardev: allocation failure")

	// ErrUnavailable is returned when opening a minor whose node failed to
	// publish, or when using a handle whose device has been torn down.
	ErrUnavailable = errors.New("chardev: device unavailable")

	// ErrHandleReleased is returned for any operation on a released handle.
	ErrHandleReleased = errors.New("chardev: handle released")

	// ErrNotInitialized is returned by Open before Initialize or after Teardown.
	ErrNotInitialized = errors.New("chardev: registry not initialised")

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("chardev: registry already initialised")

	// ErrInvalidConfig is returned by NewRegistry for unusable settings.
	ErrInvalidConfig = errors.New("chardev: invalid config")
)
