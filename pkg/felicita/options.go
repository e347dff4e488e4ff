package felicita

import (
	"time"

	"github.com/fako1024/gatt"
	"github.com/fako1024/libra/pkg/scale"
)

// WithDeviceID sets the Bluetooth device ID
func WithDeviceID(deviceID string) func(*Felicita) {
	return func(f *Felicita) {
		f.deviceID = deviceID
	}
}

// WithDeviceName sets the Bluetooth device name
func WithDeviceName(deviceName string) func(*Felicita) {
	return func(f *Felicita) {
		f.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Felicita) {
	return func(f *Felicita) {
		f.btDevice = btDevice
	}
}

// WithOpenTimeout sets how long opening a channel waits for the first weight frame
func WithOpenTimeout(timeout time.Duration) func(*Felicita) {
	return func(f *Felicita) {
		f.openTimeout = timeout
	}
}

// WithStaleAfter sets the age after which the latest weight frame is considered
// outdated (zero disables the check)
func WithStaleAfter(d time.Duration) func(*Felicita) {
	return func(f *Felicita) {
		f.staleAfter = d
	}
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Felicita) {
	return func(f *Felicita) {
		f.logger = logger
	}
}
