package scale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultConnectDelay = time.Second
	defaultRestartDelay = 2 * time.Second
)

// Disconnected denotes a scale that is configured but does not hold a sensor channel
type Disconnected struct {
	Config CalibrationConfig
	Device Device
}

// NewDisconnected instantiates a new disconnected scale
func NewDisconnected(config CalibrationConfig, device Device) Disconnected {
	return Disconnected{
		Config: config,
		Device: device,
	}
}

// Connect opens the sensor channel using the provided driver
func (d Disconnected) Connect(driver Driver, options ...func(*Scale)) (*Scale, error) {
	return Connect(driver, d.Config, d.Device, options...)
}

// Scale denotes a connected scale, exclusively owning one open sensor channel.
// A Scale must not be used by more than one goroutine at a time.
type Scale struct {
	config CalibrationConfig
	device Device
	driver Driver
	handle Handle

	// set once the scale was handed back via Disconnect
	released bool

	window     *RollingBuffer
	classifier *Classifier

	connectionStatus ConnectionStatus
	connectDelay     time.Duration
	restartDelay     time.Duration

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus

	dataHandler  func(data DataPoint)
	eventHandler func(event Event)
	eventChan    chan Event

	logger Logger
}

// Connect validates the configuration, opens the sensor channel and waits for
// hardware transients to settle, executing functional options, if any
func Connect(driver Driver, config CalibrationConfig, device Device, options ...func(*Scale)) (*Scale, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	window, err := NewRollingBuffer(config.BufferLength, config.MaxNoise)
	if err != nil {
		return nil, err
	}

	s := &Scale{
		config:       config,
		device:       device,
		driver:       driver,
		window:       window,
		classifier:   NewClassifier(config.MaxNoise),
		connectDelay: defaultConnectDelay,
		restartDelay: defaultRestartDelay,
		logger:       &NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(s)
	}

	if err := s.open(); err != nil {
		return nil, err
	}
	s.logger.Infof("sensor %d, channel %d of `%s` connected", config.SensorID, config.ChannelID, device)

	time.Sleep(s.connectDelay)
	s.setStatus(StateConnected, nil)

	return s, nil
}

// Device returns the identity of the appliance the scale is mounted in
func (s *Scale) Device() Device {
	return s.device
}

// Config returns the calibration configuration
func (s *Scale) Config() CalibrationConfig {
	return s.config
}

// ConnectionStatus returns the current connection status of the sensor channel
func (s *Scale) ConnectionStatus() ConnectionStatus {
	return s.connectionStatus
}

// IsStable returns if the rolling window currently satisfies the stability predicate
func (s *Scale) IsStable() bool {
	return s.window.IsStable()
}

// LastStableWeight returns the current event baseline, if one has been established
func (s *Scale) LastStableWeight() (float64, bool) {
	return s.classifier.LastStable()
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (s *Scale) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	s.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes (non-blocking)
func (s *Scale) SetStateChangeChannel(ch chan ConnectionStatus) {
	s.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon every polled weight
func (s *Scale) SetDataHandler(fn func(data DataPoint)) {
	s.dataHandler = fn
}

// SetEventHandler defines a handler function that is called upon every classified event
func (s *Scale) SetEventHandler(fn func(event Event)) {
	s.eventHandler = fn
}

// SetEventChannel defines a channel that receives classified events (non-blocking)
func (s *Scale) SetEventChannel(ch chan Event) {
	s.eventChan = ch
}

// GetRawReading reads one raw sample from the sensor channel. Sensor faults
// are returned unchanged.
func (s *Scale) GetRawReading() (float64, error) {
	if s.handle == nil {
		return 0, ErrNotConnected
	}

	return s.handle.ReadRatio()
}

// GetWeight reads one calibrated value, pushes it into the rolling window and
// returns it tagged with the window's current stability verdict
func (s *Scale) GetWeight() (Weight, error) {
	reading, err := s.getReading()
	if err != nil {
		return Weight{}, err
	}

	s.window.Push(reading)
	weight := Weight{
		Value:  reading,
		Stable: s.window.IsStable(),
	}

	// Call handler function, if any
	if s.dataHandler != nil {
		s.dataHandler(DataPoint{
			TimeStamp: time.Now(),
			Weight:    weight,
		})
	}

	return weight, nil
}

// CheckForAction classifies the current window against the last stable weight,
// returning an event if a settled transition beyond the noise threshold occurred
func (s *Scale) CheckForAction() (Event, bool) {
	action, delta, ok := s.classifier.Classify(s.window)
	if !ok {
		return Event{}, false
	}

	weight, _ := s.window.Last()
	event := Event{
		ID:        uuid.NewString(),
		TimeStamp: time.Now(),
		Device:    s.device,
		Action:    action,
		Delta:     delta,
		Weight:    weight,
	}
	s.logger.Infof("scale `%s`: %s, delta: %.3f", s.device, action, delta)

	// Call handler function, if any
	if s.eventHandler != nil {
		s.eventHandler(event)
	}

	// Put event on channel, if any
	if s.eventChan != nil {
		select {
		case s.eventChan <- event:
		default:
			s.logger.Warnf("event channel of scale `%s` is full, dropping event %s", s.device, event.ID)
		}
	}

	return event, true
}

// Restart closes and reopens the sensor channel, discarding the rolling window
// and the event baseline (the calibration is retained), then waits for hardware
// transients to settle. A scale left without a channel by a failed restart is
// reopened, so restarts may be retried until the channel is back
func (s *Scale) Restart() error {
	if s.released {
		return ErrNotConnected
	}

	s.logger.Infof("restarting scale `%s`", s.device)
	s.setStatus(StateRestarting, nil)

	if s.handle != nil {
		if err := s.close(); err != nil {
			s.setStatus(StateConnected, err)
			return err
		}
		s.reset()
	}
	if err := s.open(); err != nil {
		s.logger.Warnf("failed to reopen scale `%s`: %s", s.device, err)
		s.setStatus(StateDisconnected, err)
		return err
	}

	time.Sleep(s.restartDelay)
	s.setStatus(StateConnected, nil)

	return nil
}

// Disconnect closes the sensor channel (if still open) and returns the
// disconnected scale, which may be connected again later
func (s *Scale) Disconnect() (Disconnected, error) {
	if s.released {
		return Disconnected{}, ErrNotConnected
	}

	if s.handle != nil {
		if err := s.close(); err != nil {
			return Disconnected{}, err
		}
	}
	s.released = true
	s.reset()
	s.setStatus(StateDisconnected, nil)
	s.logger.Infof("scale `%s` disconnected", s.device)

	return NewDisconnected(s.config, s.device), nil
}

// RawReadOnceSettled blocks until the raw reading settles (see Settle) and
// returns it, bypassing the rolling window
func (s *Scale) RawReadOnceSettled(stableSamples int, timeout time.Duration, maxNoiseRatio float64) (float64, error) {
	if s.handle == nil {
		return 0, ErrNotConnected
	}

	return Settle(s.handle, s.config.SamplePeriod, stableSamples, timeout, maxNoiseRatio)
}

// WeighOnceSettled blocks until the raw reading settles (see Settle) and
// returns it calibrated, bypassing the rolling window
func (s *Scale) WeighOnceSettled(stableSamples int, timeout time.Duration, maxNoiseRatio float64) (float64, error) {
	raw, err := s.RawReadOnceSettled(stableSamples, timeout, maxNoiseRatio)
	if err != nil {
		return 0, err
	}

	return s.config.Calibrate(raw), nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *Scale) getReading() (float64, error) {
	raw, err := s.GetRawReading()
	if err != nil {
		return 0, err
	}

	return s.config.Calibrate(raw), nil
}

func (s *Scale) open() error {
	handle, err := s.driver.Open(s.config.ChannelID, s.config.SensorID, s.config.SamplePeriod)
	if err != nil {
		return fmt.Errorf("%w: failed to open sensor %d, channel %d: %w", ErrConnection, s.config.SensorID, s.config.ChannelID, err)
	}
	s.handle = handle

	return nil
}

func (s *Scale) close() error {
	if err := s.handle.Close(); err != nil {
		return fmt.Errorf("%w: failed to close sensor %d, channel %d: %w", ErrConnection, s.config.SensorID, s.config.ChannelID, err)
	}
	s.handle = nil

	return nil
}

func (s *Scale) reset() {
	s.window.Reset()
	s.classifier.Reset()
}

func (s *Scale) setStatus(state State, err error) {
	s.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}

	// Call handler function, if any
	if s.stateChangeHandler != nil {
		s.stateChangeHandler(s.connectionStatus)
	}

	// Put state change on channel, if any
	if s.stateChangeChan != nil {
		select {
		case s.stateChangeChan <- s.connectionStatus:
		default:
		}
	}
}
