package scale

import "time"

// Reader denotes anything that produces one raw sample per call
type Reader interface {

	// ReadRatio returns one raw, unconverted sensor ratio
	ReadRatio() (float64, error)
}

// Handle denotes an open sensor channel
type Handle interface {
	Reader

	// Close releases the sensor channel
	Close() error
}

// Driver denotes a sensor channel variant (e.g. a load cell bridge or a bluetooth scale)
type Driver interface {

	// Open opens the sensor channel identified by channelID / sensorID, requesting
	// one sample per samplePeriod
	Open(channelID, sensorID int, samplePeriod time.Duration) (Handle, error)
}

// DriverFunc adapts a plain function to the Driver interface
type DriverFunc func(channelID, sensorID int, samplePeriod time.Duration) (Handle, error)

// Open calls f(channelID, sensorID, samplePeriod)
func (f DriverFunc) Open(channelID, sensorID int, samplePeriod time.Duration) (Handle, error) {
	return f(channelID, sensorID, samplePeriod)
}

// Poller denotes the consumer-facing polling surface of a connected scale
type Poller interface {

	// GetWeight reads one calibrated value and tags it with the stability verdict
	GetWeight() (Weight, error)

	// CheckForAction classifies the current window against the last stable weight
	CheckForAction() (Event, bool)
}

// Settler denotes the one-shot, high-confidence measurement surface of a connected scale
type Settler interface {

	// RawReadOnceSettled blocks until the raw reading settles and returns it
	RawReadOnceSettled(stableSamples int, timeout time.Duration, maxNoiseRatio float64) (float64, error)

	// WeighOnceSettled blocks until the raw reading settles and returns it calibrated
	WeighOnceSettled(stableSamples int, timeout time.Duration, maxNoiseRatio float64) (float64, error)
}

// Controller denotes the full consumer-facing surface of a connected scale
type Controller interface {
	Poller
	Settler

	// Device returns the identity of the appliance the scale is mounted in
	Device() Device

	// ConnectionStatus returns the current connection status of the sensor channel
	ConnectionStatus() ConnectionStatus

	// LastStableWeight returns the current event baseline, if one has been established
	LastStableWeight() (float64, bool)

	// Restart closes and reopens the sensor channel, discarding all history
	Restart() error
}
