package scale

import "errors"

var (

	// ErrSensorFault denotes a hardware / channel I/O failure while reading a sample
	ErrSensorFault = errors.New("sensor fault")

	// ErrConnection denotes a failure while opening or closing a sensor channel
	ErrConnection = errors.New("connection fault")

	// ErrTimeout denotes a reading that did not settle within the requested time
	ErrTimeout = errors.New("reading did not settle before timeout")

	// ErrConfig denotes malformed calibration input
	ErrConfig = errors.New("invalid configuration")

	// ErrNotConnected denotes an operation on a scale that does not hold a sensor channel
	ErrNotConnected = errors.New("scale is not connected")

	// ErrInvalidArgument denotes an out-of-range call parameter
	ErrInvalidArgument = errors.New("invalid argument")
)
