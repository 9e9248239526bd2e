package actuator

import "errors"

// Domain errors for the actuator package. Check with errors.Is.
var (
	// ErrUnavailable is returned when the host exposes no GPIO interface,
	// for example when the rpio driver runs off-device.
	ErrUnavailable = errors.New("actuator: gpio unavailable")

	// ErrPinBusy is returned when a pin is already claimed in this process,
	// or when a pulse is rejected because another one is holding.
	ErrPinBusy = errors.New("actuator: pin busy")

	// ErrPinUnavailable is returned when a pin number is outside the range
	// the backend can drive.
	ErrPinUnavailable = errors.New("actuator: pin unavailable")

	// ErrLineReleased is returned when writing to a line after Release.
	ErrLineReleased = errors.New("actuator: line released")

	// ErrInvalidHold is returned for a negative hold duration.
	ErrInvalidHold = errors.New("actuator: invalid hold duration")

	// ErrUnknownDriver is returned when configuration names no known driver.
	ErrUnknownDriver = errors.New("actuator: unknown driver")
)
