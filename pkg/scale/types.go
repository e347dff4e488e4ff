package scale

import (
	"fmt"
	"time"
)

// State denotes a connection state
type State int

const (

	// StateDisconnected is active while no sensor channel is held by the scale
	StateDisconnected State = iota

	// StateConnected is active while the scale exclusively owns an open sensor channel
	StateConnected

	// StateRestarting is active while the sensor channel is being closed and reopened
	StateRestarting
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// ConnectionStatus denotes the current status of the sensor channel
type ConnectionStatus struct {
	Error error
	State
}

// Device denotes the identity of the appliance a scale is mounted in
type Device struct {
	Model  string `yaml:"model"`
	Number int    `yaml:"number"`
}

// String fulfils the Stringer interface
func (d Device) String() string {
	return fmt.Sprintf("%s-%d", d.Model, d.Number)
}

// Weight denotes a calibrated reading, tagged with the stability verdict of the
// rolling window at the time it was read
type Weight struct {
	Value  float64
	Stable bool
}

// Amount returns the calibrated value, regardless of stability
func (w Weight) Amount() float64 {
	return w.Value
}

// String fulfils the Stringer interface
func (w Weight) String() string {
	if w.Stable {
		return fmt.Sprintf("Stable: %d g", int64(w.Value))
	}
	return fmt.Sprintf("Unstable: %d g", int64(w.Value))
}

// Action denotes a classified inventory event
type Action int

const (

	// ActionServed denotes a settled weight decrease (product was taken)
	ActionServed Action = iota

	// ActionRanOut denotes the product being depleted (decided outside of this package)
	ActionRanOut

	// ActionRefilled denotes a settled weight increase (product was added)
	ActionRefilled

	// ActionStarting denotes an appliance start-up notification (decided outside of this package)
	ActionStarting

	// ActionHeartbeat denotes a periodic liveness notification (decided outside of this package)
	ActionHeartbeat

	// ActionOffline denotes a scale going offline (decided outside of this package)
	ActionOffline
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionServed:
		return "Served"
	case ActionRanOut:
		return "RanOut"
	case ActionRefilled:
		return "Refilled"
	case ActionStarting:
		return "Starting"
	case ActionHeartbeat:
		return "Heartbeat"
	case ActionOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// Event denotes a classified, settled weight transition
type Event struct {
	ID        string
	TimeStamp time.Time
	Device    Device
	Action    Action
	Delta     float64 // Signed weight change relative to the previous stable weight
	Weight    float64 // New stable weight
}

// String fulfils the Stringer interface
func (e Event) String() string {
	return fmt.Sprintf("%s: %s (delta %.2f, now %.2f)", e.Device, e.Action, e.Delta, e.Weight)
}

// DataPoint denotes a weight measurement at a certain point in time
type DataPoint struct {
	TimeStamp time.Time
	Weight
}

// DataPoints denotes a set of data points
type DataPoints []DataPoint
