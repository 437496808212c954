package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("device: group not found")

	// ErrValidation is returned when required input is missing or malformed.
	// Nothing is stored when it is returned.
	ErrValidation = errors.New("device: validation failed")

	// ErrPersistence is returned when a mutation was applied in memory but
	// could not be written to the store. The in-memory registry is then
	// ahead of storage until the next successful save.
	ErrPersistence = errors.New("device: persistence failed")

	// ErrSnapshotNotFound is returned by a Store when nothing has been saved yet.
	ErrSnapshotNotFound = errors.New("device: no stored snapshot")
)
