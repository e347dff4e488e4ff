package scale_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fako1024/libra/pkg/mock"
	"github.com/fako1024/libra/pkg/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDevice = scale.Device{Model: "LibraV0", Number: 0}
	testConfig = scale.CalibrationConfig{
		Gain:         2,
		Offset:       10,
		BufferLength: 3,
		MaxNoise:     1,
		SamplePeriod: testSamplePeriod,
		SensorID:     716588,
		ChannelID:    1,
	}
)

var _ scale.Controller = (*scale.Scale)(nil)

func connect(t *testing.T, driver scale.Driver, options ...func(*scale.Scale)) *scale.Scale {
	options = append([]func(*scale.Scale){
		scale.WithConnectDelay(0),
		scale.WithRestartDelay(0),
	}, options...)

	s, err := scale.Connect(driver, testConfig, testDevice, options...)
	require.NoError(t, err)
	return s
}

func poll(t *testing.T, s *scale.Scale, n int) []scale.Weight {
	res := make([]scale.Weight, 0, n)
	for i := 0; i < n; i++ {
		w, err := s.GetWeight()
		require.NoError(t, err)
		res = append(res, w)
	}
	return res
}

func TestConnect(t *testing.T) {
	driver := mock.New()
	s := connect(t, driver)

	channelID, sensorID, samplePeriod := driver.LastOpenParams()
	assert.Equal(t, testConfig.ChannelID, channelID)
	assert.Equal(t, testConfig.SensorID, sensorID)
	assert.Equal(t, testConfig.SamplePeriod, samplePeriod)

	assert.Equal(t, scale.StateConnected, s.ConnectionStatus().State)
	assert.Equal(t, testDevice, s.Device())
	assert.Equal(t, testConfig, s.Config())
	assert.True(t, driver.IsOpen())
}

func TestConnectFailure(t *testing.T) {
	openErr := errors.New("no such sensor")
	_, err := scale.Connect(mock.New(mock.WithOpenError(openErr)), testConfig, testDevice, scale.WithConnectDelay(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, scale.ErrConnection))
	assert.True(t, errors.Is(err, openErr))

	var opened []int
	_, err = scale.Connect(scale.DriverFunc(func(channelID, sensorID int, _ time.Duration) (scale.Handle, error) {
		opened = append(opened, channelID, sensorID)
		return nil, openErr
	}), testConfig, testDevice, scale.WithConnectDelay(0))
	assert.True(t, errors.Is(err, scale.ErrConnection))
	assert.Equal(t, []int{testConfig.ChannelID, testConfig.SensorID}, opened)

	invalid := testConfig
	invalid.BufferLength = 0
	driver := mock.New()
	_, err = scale.Connect(driver, invalid, testDevice, scale.WithConnectDelay(0))
	assert.True(t, errors.Is(err, scale.ErrConfig))
	assert.Equal(t, 0, driver.OpenCount(), "invalid configuration must not open a channel")
}

func TestGetWeight(t *testing.T) {
	s := connect(t, mock.New(mock.WithSource(mock.Sequence(10, 10.2, 10.4, 20))))

	raw, err := s.GetRawReading()
	require.NoError(t, err)
	assert.Equal(t, 10., raw)

	weights := poll(t, s, 3)

	// The value is always the latest calibrated reading, only the tag reflects the window
	assert.InDelta(t, 10.4, weights[0].Value, 1e-9)
	assert.False(t, weights[0].Stable)
	assert.InDelta(t, 10.8, weights[1].Value, 1e-9)
	assert.False(t, weights[1].Stable)
	assert.InDelta(t, 30., weights[2].Value, 1e-9)
	assert.False(t, weights[2].Stable)

	weights = poll(t, s, 2)
	assert.False(t, weights[0].Stable)
	assert.True(t, weights[1].Stable)
	assert.InDelta(t, 30., weights[1].Value, 1e-9)
}

func TestGetWeightSensorFault(t *testing.T) {
	readErr := errors.New("bridge saturated")
	s := connect(t, mock.New(mock.WithSource(mock.Failing(readErr, 1, 1, 1))))

	weights := poll(t, s, 3)
	require.True(t, weights[2].Stable)

	w, err := s.GetWeight()
	assert.Equal(t, readErr, err, "sensor faults must be returned unchanged")
	assert.Equal(t, scale.Weight{}, w)

	_, err = s.GetRawReading()
	assert.Equal(t, readErr, err)
}

func TestCheckForAction(t *testing.T) {
	s := connect(t, mock.New(mock.WithSource(mock.Sequence(55, 55, 55, 80, 80, 80, 30, 30, 30))))

	var (
		handled []scale.Event
		data    scale.DataPoints
	)
	s.SetEventHandler(func(event scale.Event) {
		handled = append(handled, event)
	})
	s.SetDataHandler(func(dp scale.DataPoint) {
		data = append(data, dp)
	})
	events := make(chan scale.Event, 1)
	s.SetEventChannel(events)

	var emitted []scale.Event
	for i := 0; i < 9; i++ {
		_, err := s.GetWeight()
		require.NoError(t, err)
		if event, ok := s.CheckForAction(); ok {
			emitted = append(emitted, event)
		}
		if i == 2 {
			baseline, ok := s.LastStableWeight()
			require.True(t, ok)
			assert.Equal(t, 100., baseline)
		}
	}

	require.Len(t, emitted, 2)
	assert.Equal(t, scale.ActionRefilled, emitted[0].Action)
	assert.Equal(t, 50., emitted[0].Delta)
	assert.Equal(t, 150., emitted[0].Weight)
	assert.Equal(t, testDevice, emitted[0].Device)
	assert.NotEmpty(t, emitted[0].ID)
	assert.False(t, emitted[0].TimeStamp.IsZero())

	assert.Equal(t, scale.ActionServed, emitted[1].Action)
	assert.Equal(t, -100., emitted[1].Delta)
	assert.Equal(t, 50., emitted[1].Weight)
	assert.NotEqual(t, emitted[0].ID, emitted[1].ID)

	assert.Equal(t, emitted, handled)
	assert.Len(t, data, 9)

	// The channel holds a single event, the second one was dropped
	require.Len(t, events, 1)
	assert.Equal(t, emitted[0], <-events)
}

func TestRestart(t *testing.T) {
	driver := mock.New(mock.WithSource(mock.Constant(50)))
	s := connect(t, driver)

	var states []scale.State
	s.SetStateChangeHandler(func(status scale.ConnectionStatus) {
		states = append(states, status.State)
	})

	poll(t, s, 3)
	_, ok := s.CheckForAction()
	require.False(t, ok)
	require.True(t, s.IsStable())
	_, ok = s.LastStableWeight()
	require.True(t, ok)

	require.NoError(t, s.Restart())
	assert.Equal(t, 2, driver.OpenCount())
	assert.Equal(t, 1, driver.CloseCount())
	assert.Equal(t, []scale.State{scale.StateRestarting, scale.StateConnected}, states)

	assert.False(t, s.IsStable())
	_, ok = s.LastStableWeight()
	assert.False(t, ok)
	assert.Equal(t, testConfig, s.Config())

	weights := poll(t, s, 3)
	assert.False(t, weights[0].Stable)
	assert.False(t, weights[1].Stable)
	assert.True(t, weights[2].Stable)

	// The first stable observation after a restart only re-establishes the baseline
	_, ok = s.CheckForAction()
	assert.False(t, ok)
}

func TestRestartFailure(t *testing.T) {
	closeErr := errors.New("device busy")
	driver := mock.New(mock.WithCloseError(closeErr))
	s := connect(t, driver)

	err := s.Restart()
	assert.True(t, errors.Is(err, scale.ErrConnection))
	assert.True(t, errors.Is(err, closeErr))
	assert.Equal(t, 1, driver.OpenCount())

	openErr := errors.New("device gone")
	driver = mock.New(mock.WithSource(mock.Constant(50)))
	s = connect(t, driver)
	poll(t, s, 3)
	_, ok := s.CheckForAction()
	require.False(t, ok)
	require.True(t, s.IsStable())

	driver.SetOpenError(openErr)
	err = s.Restart()
	assert.True(t, errors.Is(err, scale.ErrConnection))
	assert.True(t, errors.Is(err, openErr))
	assert.Equal(t, scale.StateDisconnected, s.ConnectionStatus().State)
	assert.True(t, errors.Is(s.ConnectionStatus().Error, openErr))
	assert.False(t, driver.IsOpen())

	// Nothing from before the failed restart survives
	assert.False(t, s.IsStable())
	_, ok = s.LastStableWeight()
	assert.False(t, ok)

	_, err = s.GetWeight()
	assert.True(t, errors.Is(err, scale.ErrNotConnected))

	// Restarts keep trying to reopen the channel
	err = s.Restart()
	assert.True(t, errors.Is(err, openErr))
	assert.Equal(t, 1, driver.CloseCount())

	driver.SetOpenError(nil)
	require.NoError(t, s.Restart())
	assert.Equal(t, scale.StateConnected, s.ConnectionStatus().State)
	assert.NoError(t, s.ConnectionStatus().Error)
	assert.True(t, driver.IsOpen())
	assert.Equal(t, 2, driver.OpenCount())
	assert.Equal(t, 1, driver.CloseCount())

	weights := poll(t, s, 3)
	assert.True(t, weights[2].Stable)
	assert.Equal(t, 90., weights[2].Value)

	// A scale without a channel can still be handed back
	driver.SetOpenError(openErr)
	require.Error(t, s.Restart())
	_, err = s.Disconnect()
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Restart(), scale.ErrNotConnected))
}

func TestDisconnect(t *testing.T) {
	driver := mock.New(mock.WithSource(mock.Constant(3)))
	s := connect(t, driver)

	states := make(chan scale.ConnectionStatus, 4)
	s.SetStateChangeChannel(states)

	poll(t, s, 3)
	_, ok := s.CheckForAction()
	require.False(t, ok)
	require.True(t, s.IsStable())

	disconnected, err := s.Disconnect()
	require.NoError(t, err)
	assert.Equal(t, scale.NewDisconnected(testConfig, testDevice), disconnected)
	assert.False(t, driver.IsOpen())
	assert.Equal(t, scale.StateDisconnected, (<-states).State)

	assert.False(t, s.IsStable())
	_, ok = s.LastStableWeight()
	assert.False(t, ok)

	_, err = s.GetWeight()
	assert.True(t, errors.Is(err, scale.ErrNotConnected))
	_, err = s.WeighOnceSettled(3, time.Second, 0.1)
	assert.True(t, errors.Is(err, scale.ErrNotConnected))
	assert.True(t, errors.Is(s.Restart(), scale.ErrNotConnected))
	_, err = s.Disconnect()
	assert.True(t, errors.Is(err, scale.ErrNotConnected))

	// A disconnected scale can be connected again
	s, err = disconnected.Connect(driver, scale.WithConnectDelay(0))
	require.NoError(t, err)
	assert.True(t, driver.IsOpen())
	assert.Equal(t, 2, driver.OpenCount())

	w, err := s.GetWeight()
	require.NoError(t, err)
	assert.Equal(t, -4., w.Value)
}

func TestWeighOnceSettled(t *testing.T) {
	s := connect(t, mock.New(mock.WithSource(mock.Sequence(7, 9, 9, 9, 9))))

	raw, err := s.RawReadOnceSettled(3, time.Second, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 9., raw)

	// Settling bypasses the rolling window
	assert.False(t, s.IsStable())

	weight, err := s.WeighOnceSettled(3, time.Second, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 8., weight)

	_, err = connect(t, mock.New(mock.WithSource(mock.Ramp(1, 1)))).WeighOnceSettled(3, 30*time.Millisecond, 0.01)
	assert.True(t, errors.Is(err, scale.ErrTimeout))
}
