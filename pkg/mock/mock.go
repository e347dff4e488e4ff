package mock

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fako1024/libra/pkg/scale"
)

// Source generates the n-th raw sample (counting from zero since the channel was opened)
type Source func(n int) (float64, error)

// Constant returns a source that always yields value
func Constant(value float64) Source {
	return func(int) (float64, error) {
		return value, nil
	}
}

// Sequence returns a source that yields the given values in order, repeating the
// last one once the sequence is exhausted
func Sequence(values ...float64) Source {
	return func(n int) (float64, error) {
		if len(values) == 0 {
			return 0, fmt.Errorf("%w: empty mock sequence", scale.ErrSensorFault)
		}
		if n >= len(values) {
			return values[len(values)-1], nil
		}
		return values[n], nil
	}
}

// Ramp returns a source that yields start, start+step, start+2*step, ...
func Ramp(start, step float64) Source {
	return func(n int) (float64, error) {
		return start + float64(n)*step, nil
	}
}

// Noisy returns a source that yields base plus uniformly distributed jitter in [-amplitude, amplitude)
func Noisy(base, amplitude float64) Source {
	return func(int) (float64, error) {
		return base + (rand.Float64()*2-1)*amplitude, nil
	}
}

// Failing returns a source that yields the given values, then fails with err
func Failing(err error, values ...float64) Source {
	return func(n int) (float64, error) {
		if n >= len(values) {
			return 0, err
		}
		return values[n], nil
	}
}

// Mock denotes a mock sensor channel driver
type Mock struct {
	source Source

	openErr  error
	closeErr error

	openCount  int
	closeCount int
	isOpen     bool

	lastChannelID    int
	lastSensorID     int
	lastSamplePeriod time.Duration

	mu sync.Mutex
}

// New instantiates a new Mock driver, executing functional options, if any
func New(options ...func(*Mock)) *Mock {

	// Initialize a new instance of a Mock driver
	m := &Mock{
		source: Constant(0),
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(m)
	}

	return m
}

// WithSource sets the source of raw samples
func WithSource(source Source) func(*Mock) {
	return func(m *Mock) {
		m.source = source
	}
}

// WithOpenError makes every attempt to open the channel fail with err
func WithOpenError(err error) func(*Mock) {
	return func(m *Mock) {
		m.openErr = err
	}
}

// WithCloseError makes every attempt to close the channel fail with err
func WithCloseError(err error) func(*Mock) {
	return func(m *Mock) {
		m.closeErr = err
	}
}

// SetSource replaces the source of raw samples (effective for channels opened afterwards)
func (m *Mock) SetSource(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.source = source
}

// SetOpenError changes the error returned when opening the channel
func (m *Mock) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openErr = err
}

// Open opens a new mock channel, restarting the sample count of the source
func (m *Mock) Open(channelID, sensorID int, samplePeriod time.Duration) (scale.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.isOpen {
		return nil, fmt.Errorf("mock channel %d of sensor %d is already open", channelID, sensorID)
	}

	m.openCount++
	m.isOpen = true
	m.lastChannelID, m.lastSensorID, m.lastSamplePeriod = channelID, sensorID, samplePeriod

	return &Handle{
		mock:   m,
		source: m.source,
	}, nil
}

// OpenCount returns how often a channel was opened
func (m *Mock) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.openCount
}

// CloseCount returns how often a channel was closed
func (m *Mock) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeCount
}

// IsOpen returns if a channel is currently open
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isOpen
}

// LastOpenParams returns the parameters of the most recent open call
func (m *Mock) LastOpenParams() (channelID, sensorID int, samplePeriod time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastChannelID, m.lastSensorID, m.lastSamplePeriod
}

// Handle denotes an open mock channel
type Handle struct {
	mock   *Mock
	source Source
	n      int
	closed bool
}

// ReadRatio returns the next sample of the source
func (h *Handle) ReadRatio() (float64, error) {
	if h.closed {
		return 0, fmt.Errorf("%w: read from closed mock channel", scale.ErrSensorFault)
	}

	val, err := h.source(h.n)
	h.n++

	return val, err
}

// Close closes the mock channel
func (h *Handle) Close() error {
	h.mock.mu.Lock()
	defer h.mock.mu.Unlock()

	if h.mock.closeErr != nil {
		return h.mock.closeErr
	}
	if h.closed {
		return fmt.Errorf("mock channel already closed")
	}

	h.closed = true
	h.mock.isOpen = false
	h.mock.closeCount++

	return nil
}
