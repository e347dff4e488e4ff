package scale

import "fmt"

// RollingBuffer denotes a fixed-capacity sliding window of calibrated readings
// backed by a ring buffer. The oldest reading is evicted first.
type RollingBuffer struct {
	values   []float64
	head     int // Index of the oldest element
	n        int
	maxNoise float64
}

// NewRollingBuffer instantiates an empty window holding at most length readings,
// considered stable once full and spread below maxNoise
func NewRollingBuffer(length int, maxNoise float64) (*RollingBuffer, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: buffer length must be positive, got %d", ErrConfig, length)
	}

	return &RollingBuffer{
		values:   make([]float64, length),
		maxNoise: maxNoise,
	}, nil
}

// Push appends a reading, evicting the oldest one if the window is at capacity
func (b *RollingBuffer) Push(value float64) {
	if b.n < len(b.values) {
		b.values[(b.head+b.n)%len(b.values)] = value
		b.n++
		return
	}

	b.values[b.head] = value
	b.head = (b.head + 1) % len(b.values)
}

// IsStable returns true iff the window is at capacity and the spread of its
// readings is strictly below the noise threshold
func (b *RollingBuffer) IsStable() bool {
	if b.n != len(b.values) {
		return false
	}

	min, max := b.values[0], b.values[0]
	for _, v := range b.values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return max-min < b.maxNoise
}

// Last returns the most recently pushed reading
func (b *RollingBuffer) Last() (float64, bool) {
	if b.n == 0 {
		return 0, false
	}

	return b.values[(b.head+b.n-1)%len(b.values)], true
}

// Len returns the number of readings currently held
func (b *RollingBuffer) Len() int {
	return b.n
}

// Cap returns the capacity of the window
func (b *RollingBuffer) Cap() int {
	return len(b.values)
}

// Values returns a copy of the window, oldest reading first
func (b *RollingBuffer) Values() []float64 {
	res := make([]float64, b.n)
	for i := 0; i < b.n; i++ {
		res[i] = b.values[(b.head+i)%len(b.values)]
	}

	return res
}

// Reset discards all readings
func (b *RollingBuffer) Reset() {
	b.head, b.n = 0, 0
}
