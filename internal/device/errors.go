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

	// ErrDeviceExists is returned when creating a device whose ID already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidAddress is returned when a control address is empty or
	// not a well-formed URL.
	ErrInvalidAddress = errors.New("device: invalid control address")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidPowerSource is returned when a power source value is not recognised.
	ErrInvalidPowerSource = errors.New("device: invalid power source")
)
