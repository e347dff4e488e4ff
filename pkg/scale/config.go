package scale

import (
	"fmt"
	"math"
	"time"
)

// CalibrationConfig denotes the immutable per-scale parameters
type CalibrationConfig struct {
	Gain         float64       `yaml:"gain"`
	Offset       float64       `yaml:"offset"`
	BufferLength int           `yaml:"buffer_length"`
	MaxNoise     float64       `yaml:"max_noise"`
	SamplePeriod time.Duration `yaml:"sample_period"`
	SensorID     int           `yaml:"sensor_id"`
	ChannelID    int           `yaml:"channel_id"`
}

// Validate checks the configuration for values the scale cannot operate with
func (c CalibrationConfig) Validate() error {
	if c.BufferLength <= 0 {
		return fmt.Errorf("%w: buffer length must be positive, got %d", ErrConfig, c.BufferLength)
	}
	if !(c.MaxNoise > 0) {
		return fmt.Errorf("%w: max noise must be positive, got %v", ErrConfig, c.MaxNoise)
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("%w: sample period must be positive, got %v", ErrConfig, c.SamplePeriod)
	}
	if math.IsNaN(c.Gain) || math.IsInf(c.Gain, 0) {
		return fmt.Errorf("%w: gain must be finite, got %v", ErrConfig, c.Gain)
	}
	if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return fmt.Errorf("%w: offset must be finite, got %v", ErrConfig, c.Offset)
	}

	return nil
}

// Calibrate converts a raw sensor ratio into a calibrated weight
func (c CalibrationConfig) Calibrate(raw float64) float64 {
	return raw*c.Gain - c.Offset
}

// ComputeCalibration derives gain and offset from two raw readings: one taken
// with the scale empty and one taken with a known weight placed on it
func ComputeCalibration(emptyRaw, loadedRaw, knownWeight float64) (gain, offset float64, err error) {
	span := loadedRaw - emptyRaw
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return 0, 0, fmt.Errorf("%w: empty and loaded readings must differ (%v / %v)", ErrInvalidArgument, emptyRaw, loadedRaw)
	}

	gain = knownWeight / span
	offset = knownWeight * emptyRaw / span

	return
}
