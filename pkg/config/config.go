package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fako1024/libra/pkg/scale"
	"gopkg.in/yaml.v3"
)

const (

	// DriverMock denotes the in-memory mock sensor channel
	DriverMock = "mock"

	// DriverFelicita denotes a Felicita bluetooth scale
	DriverFelicita = "felicita"
)

// Entry denotes one configured scale
type Entry struct {
	Driver      string                  `yaml:"driver"`
	Device      scale.Device            `yaml:"device"`
	Calibration scale.CalibrationConfig `yaml:"calibration"`

	// Driver specific settings
	Mock     MockSettings     `yaml:"mock,omitempty"`
	Felicita FelicitaSettings `yaml:"felicita,omitempty"`
}

// MockSettings denotes the simulated signal of a mock scale
type MockSettings struct {
	Base  float64 `yaml:"base"`
	Noise float64 `yaml:"noise"`
}

// FelicitaSettings denotes how to find a Felicita bluetooth scale
type FelicitaSettings struct {
	DeviceID   string `yaml:"device_id"`
	DeviceName string `yaml:"device_name"`
}

// Disconnected returns the (not yet connected) scale described by the entry
func (e Entry) Disconnected() scale.Disconnected {
	return scale.NewDisconnected(e.Calibration, e.Device)
}

// Validate checks the entry for values no scale can operate with
func (e Entry) Validate() error {
	switch e.Driver {
	case DriverMock, DriverFelicita:
	default:
		return fmt.Errorf("%w: unknown driver `%s`", scale.ErrConfig, e.Driver)
	}
	if e.Device.Model == "" {
		return fmt.Errorf("%w: device model is required", scale.ErrConfig)
	}

	return e.Calibration.Validate()
}

type file struct {
	Scales []Entry `yaml:"scales"`
}

// Load reads the list of scales from a YAML file
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scale.ErrConfig, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads the list of scales from a YAML document
func Parse(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scale.ErrConfig, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg file
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty configuration", scale.ErrConfig)
		}
		return nil, fmt.Errorf("%w: %w", scale.ErrConfig, err)
	}
	if len(cfg.Scales) == 0 {
		return nil, fmt.Errorf("%w: no scales configured", scale.ErrConfig)
	}

	for i := range cfg.Scales {
		cfg.Scales[i].Driver = strings.ToLower(strings.TrimSpace(cfg.Scales[i].Driver))
		if err := cfg.Scales[i].Validate(); err != nil {
			return nil, fmt.Errorf("scale #%d (%s): %w", i, cfg.Scales[i].Device, err)
		}
	}

	return cfg.Scales, nil
}
