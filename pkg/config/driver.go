package config

import (
	"github.com/fako1024/libra/pkg/felicita"
	"github.com/fako1024/libra/pkg/mock"
	"github.com/fako1024/libra/pkg/scale"
)

// BuildDriver instantiates the sensor channel variant selected by the entry
func (e Entry) BuildDriver(logger scale.Logger) scale.Driver {
	switch e.Driver {
	case DriverFelicita:
		options := []func(*felicita.Felicita){felicita.WithLogger(logger)}
		if e.Felicita.DeviceID != "" {
			options = append(options, felicita.WithDeviceID(e.Felicita.DeviceID))
		}
		if e.Felicita.DeviceName != "" {
			options = append(options, felicita.WithDeviceName(e.Felicita.DeviceName))
		}
		return felicita.New(options...)
	default:
		return mock.New(mock.WithSource(mock.Noisy(e.Mock.Base, e.Mock.Noise)))
	}
}
