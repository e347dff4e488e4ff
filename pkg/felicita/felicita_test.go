package felicita

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fako1024/libra/pkg/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(weight, unit string) []byte {
	data := []byte{0x01, 0x02}
	data = append(data, []byte(weight)...)
	data = append(data, []byte(unit)...)
	for len(data) < frameLength {
		data = append(data, 0x00)
	}
	return data
}

func TestOpenWithoutAdapter(t *testing.T) {
	h, err := New(WithOpenTimeout(100 * time.Millisecond)).Open(0, 0, 100*time.Millisecond)
	require.Error(t, err, "opening a channel was unexpectedly successful")
	assert.Nil(t, h)
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		weight float64
		ok     bool
	}{
		{"grams", frame("+001234", "g "), 12.34, true},
		{"negative", frame("-000150", " g"), -1.5, true},
		{"ounces", frame("+000100", "oz"), gramsPerOz, true},
		{"unknown unit", frame("+000100", "xx"), 0, false},
		{"garbage weight", frame("+00a1b4", "g "), 0, false},
		{"short frame", []byte{0x01, 0x02, 0x03}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weight, ok := parseFrame(tt.data)
			require.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.weight, weight, 1e-9)
		})
	}
}

func TestChannelRead(t *testing.T) {
	f := New(WithStaleAfter(time.Hour))
	ch := &Channel{driver: f, doneChan: make(chan struct{})}
	f.current = ch

	_, err := ch.ReadRatio()
	assert.True(t, errors.Is(err, scale.ErrSensorFault), "read before first frame should be a sensor fault")

	ch.receiveData(nil, frame("+012500", "g "), nil)
	val, err := ch.ReadRatio()
	require.NoError(t, err)
	assert.InDelta(t, 125.0, val, 1e-9)

	// Invalid frames leave the latest weight untouched
	ch.receiveData(nil, []byte{0x00}, nil)
	val, err = ch.ReadRatio()
	require.NoError(t, err)
	assert.InDelta(t, 125.0, val, 1e-9)

	ch.receiveData(nil, nil, errors.New("notification failed"))
	_, err = ch.ReadRatio()
	assert.True(t, errors.Is(err, scale.ErrSensorFault))

	require.NoError(t, ch.Close())
	assert.Nil(t, f.channel())
	_, err = ch.ReadRatio()
	assert.True(t, errors.Is(err, scale.ErrSensorFault))
	assert.Error(t, ch.Close())
}

func TestChannelCloseWhileStarting(t *testing.T) {
	f := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		ch := &Channel{driver: f, doneChan: make(chan struct{})}
		f.mu.Lock()
		f.current = ch
		f.mu.Unlock()

		// Device setup on open swaps the GATT device under the driver lock
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.mu.Lock()
			f.btDevice = nil
			f.mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, ch.Close())
		}()
		wg.Wait()

		assert.Nil(t, f.channel())
	}
}

func TestChannelStale(t *testing.T) {
	f := New(WithStaleAfter(time.Millisecond))
	ch := &Channel{driver: f, doneChan: make(chan struct{})}

	ch.receiveData(nil, frame("+001000", "g "), nil)
	time.Sleep(10 * time.Millisecond)

	_, err := ch.ReadRatio()
	assert.True(t, errors.Is(err, scale.ErrSensorFault), "outdated frame should be a sensor fault")
}

func TestWaitForData(t *testing.T) {
	f := New()
	ch := &Channel{driver: f, doneChan: make(chan struct{})}

	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.receiveData(nil, frame("+000500", "g "), nil)
	}()
	require.NoError(t, ch.waitForData(time.Second))

	empty := &Channel{driver: f, doneChan: make(chan struct{})}
	assert.Error(t, empty.waitForData(100*time.Millisecond))
}
