package felicita

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/gatt"
	"github.com/fako1024/libra/pkg/scale"
	"github.com/fatih/stopwatch"
)

const (
	defaultDeviceName  = "FELICITA"
	dataService        = "ffe0"
	dataCharacteristic = "ffe1"

	frameLength = 18
	gramsPerOz  = 28.349523125

	defaultOpenTimeout = 30 * time.Second
	defaultStaleAfter  = 5 * time.Second

	btSettleDelay = 50 * time.Millisecond
)

// Felicita denotes a sensor channel driver backed by a Felicita bluetooth scale.
// The scale streams weight frames on its own, the most recent one is returned
// as the raw sample (in grams).
type Felicita struct {
	deviceID   string
	deviceName string

	openTimeout time.Duration
	staleAfter  time.Duration

	btDevice    gatt.Device
	initialized bool
	poweredOn   bool
	current     *Channel

	logger scale.Logger
	mu     sync.Mutex
}

// New instantiates a new Felicita driver, executing functional options, if any
func New(options ...func(*Felicita)) *Felicita {

	// Initialize a new instance of a Felicita driver
	f := &Felicita{
		deviceName:  defaultDeviceName,
		openTimeout: defaultOpenTimeout,
		staleAfter:  defaultStaleAfter,
		logger:      &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	return f
}

// Open starts scanning for the scale and blocks until the first weight frame has
// been received or the open timeout has passed. The scale streams at its own rate,
// the requested sample period is not applied to the device.
func (f *Felicita) Open(channelID, sensorID int, samplePeriod time.Duration) (scale.Handle, error) {

	f.mu.Lock()
	if f.current != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("channel of device `%s` is already open", f.deviceName)
	}
	ch := &Channel{
		driver:   f,
		doneChan: make(chan struct{}),
	}
	f.current = ch
	f.mu.Unlock()

	f.logger.Debugf("opening channel %d of sensor %d (sample period %v, governed by device)", channelID, sensorID, samplePeriod)

	if err := f.start(); err != nil {
		f.release(ch)
		return nil, err
	}

	if err := ch.waitForData(f.openTimeout); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

////////////////////////////////////////////////////////////////////////////////

func (f *Felicita) start() error {

	f.mu.Lock()
	btDevice, initialized, poweredOn := f.btDevice, f.initialized, f.poweredOn
	f.mu.Unlock()

	// Initialize a new GATT device (if not provided as option)
	if btDevice == nil {
		var err error
		if btDevice, err = gatt.NewDevice(defaultBTClientOptions...); err != nil {
			return err
		}
		f.mu.Lock()
		f.btDevice = btDevice
		f.mu.Unlock()
	}

	// The device is initialized once, subsequent channels simply resume scanning
	if initialized {
		if poweredOn {
			return btDevice.Scan([]gatt.UUID{}, false)
		}
		return nil
	}

	// Register handlers
	btDevice.Handle(
		gatt.AddPeripheralDiscovered(f.onPeriphDiscovered),
		gatt.AddPeripheralConnected(f.onPeriphConnected),
		gatt.AddPeripheralDisconnected(f.onPeriphDisconnected),
	)
	if err := btDevice.Init(f.onStateChanged); err != nil {
		return err
	}

	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()

	return nil
}

func (f *Felicita) channel() *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current
}

// release detaches the channel and returns the GATT device it was served by (if any)
func (f *Felicita) release(ch *Channel) gatt.Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current == ch {
		f.current = nil
	}
	return f.btDevice
}

func (f *Felicita) device() gatt.Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.btDevice
}

func (f *Felicita) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		f.mu.Lock()
		f.poweredOn = true
		f.mu.Unlock()
		if err := d.Scan([]gatt.UUID{}, false); err != nil {
			f.logger.Warnf("failed to enable initial scanning: %s", err)
		}
		return
	case gatt.StatePoweredOff:
		f.mu.Lock()
		f.poweredOn = false
		f.mu.Unlock()
		if ch := f.channel(); ch != nil {
			ch.setError(fmt.Errorf("bluetooth adapter powered off"))
		}
		return
	default:
		if err := d.StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
	}
}

func (f *Felicita) onPeriphDiscovered(p gatt.Peripheral, _ *gatt.Advertisement, _ int) {

	f.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

	if !f.thisDevice(p) || f.channel() == nil {
		return
	}

	// Stop scanning once we've got the peripheral we're looking for.
	if err := p.Device().StopScanning(); err != nil {
		f.logger.Warnf("failed to stop initial scanning: %s", err)
	}
	if err := p.Device().Connect(p); err != nil {
		f.logger.Errorf("failed to connect device `%s/%s`: %s", p.Name(), p.ID(), err)
	}
}

func (f *Felicita) onPeriphConnected(p gatt.Peripheral, connErr error) {

	if !f.thisDevice(p) {
		return
	}
	ch := f.channel()
	if ch == nil {
		_ = p.Device().CancelConnection(p)
		return
	}
	if connErr != nil {
		ch.setError(connErr)
		return
	}

	f.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	defer func() {
		_ = p.Device().CancelConnection(p)
		if connErr != nil {
			ch.setError(connErr)
		}
	}()

	// Set connection MTU
	if err := p.SetMTU(500); err != nil {
		connErr = fmt.Errorf("failed to set MTU: %w", err)
		return
	}

	// Discover services
	ss, err := p.DiscoverServices(nil)
	if err != nil {
		connErr = fmt.Errorf("failed to discover services: %w", err)
		return
	}
	for _, s := range ss {
		if s.UUID().String() != dataService {
			continue
		}

		// Discover characteristics
		cs, err := p.DiscoverCharacteristics(nil, s)
		if err != nil {
			connErr = fmt.Errorf("failed to discover characteristics: %w", err)
			return
		}
		for _, c := range cs {
			if c.UUID().String() != dataCharacteristic {
				continue
			}

			// Discover descriptors
			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				connErr = fmt.Errorf("failed to discover descriptors: %w", err)
				return
			}
			if err := p.SetNotifyValue(c, ch.receiveData); err != nil {
				connErr = fmt.Errorf("failed to subscribe characteristic: %w", err)
				return
			}
		}
	}

	f.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-ch.doneChan
	f.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (f *Felicita) onPeriphDisconnected(p gatt.Peripheral, err error) {

	if !f.thisDevice(p) {
		return
	}
	f.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	// Keep looking for the scale as long as a channel is open
	ch := f.channel()
	if ch == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("peripheral `%s` disconnected", p.ID())
	}
	ch.setError(err)

	time.Sleep(100 * time.Millisecond)
	if err := f.device().Scan([]gatt.UUID{}, false); err != nil {
		f.logger.Warnf("failed to re-enable scanning after disconnect: %s", err)
	}
}

func (f *Felicita) thisDevice(p gatt.Peripheral) bool {

	// Check if name and / or device ID have been overridden
	if f.deviceID != "" && strings.EqualFold(p.ID(), f.deviceID) {
		return true
	}
	return strings.EqualFold(p.Name(), f.deviceName)
}

////////////////////////////////////////////////////////////////////////////////

// Channel denotes an open channel to a Felicita scale
type Channel struct {
	driver *Felicita

	weight     float64
	receivedAt time.Time
	hasData    bool
	lastErr    error
	closed     bool

	doneChan chan struct{}
	mu       sync.RWMutex
}

// ReadRatio returns the most recently received weight (in grams)
func (c *Channel) ReadRatio() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, fmt.Errorf("%w: read from closed channel", scale.ErrSensorFault)
	}
	if !c.hasData {
		if c.lastErr != nil {
			return 0, fmt.Errorf("%w: no data received: %s", scale.ErrSensorFault, c.lastErr)
		}
		return 0, fmt.Errorf("%w: no data received", scale.ErrSensorFault)
	}
	if c.driver.staleAfter > 0 && time.Since(c.receivedAt) > c.driver.staleAfter {
		return 0, fmt.Errorf("%w: last data received %v ago", scale.ErrSensorFault, time.Since(c.receivedAt).Round(time.Millisecond))
	}

	return c.weight, nil
}

// Close terminates the connection to the device
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel already closed")
	}
	c.closed = true
	close(c.doneChan)
	c.mu.Unlock()

	btDevice := c.driver.release(c)
	if btDevice == nil {
		return nil
	}
	_ = btDevice.StopScanning()
	return btDevice.RemoveAllServices()
}

func (c *Channel) receiveData(_ *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		c.setError(err)
		return
	}

	weight, ok := parseFrame(req)
	if !ok {
		return
	}

	c.mu.Lock()
	c.weight, c.receivedAt, c.hasData = weight, time.Now(), true
	c.mu.Unlock()
}

func (c *Channel) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err
	c.hasData = false
}

func (c *Channel) waitForData(timeout time.Duration) error {
	timer := stopwatch.Start(0)
	defer timer.Stop()

	for timer.ElapsedTime() < timeout {
		c.mu.RLock()
		hasData, lastErr := c.hasData, c.lastErr
		c.mu.RUnlock()

		if hasData {
			return nil
		}
		if lastErr != nil {
			return lastErr
		}
		time.Sleep(btSettleDelay)
	}

	return fmt.Errorf("no data received from device `%s` within %v", c.driver.deviceName, timeout)
}

////////////////////////////////////////////////////////////////////////////////

// parseFrame extracts the weight (in grams) from a notification frame
func parseFrame(req []byte) (float64, bool) {
	if len(req) != frameLength {
		return 0, false
	}

	weight, err := strconv.ParseFloat(strings.TrimSpace(string(req[2:9])), 64)
	if err != nil {
		return 0, false
	}
	weight /= 100.

	switch parseUnit(req[9:11]) {
	case unitGrams:
		return weight, true
	case unitOz:
		return weight * gramsPerOz, true
	default:
		return 0, false
	}
}

type unit int

const (
	unitUnknown unit = iota
	unitGrams
	unitOz
)

func parseUnit(data []byte) unit {
	if len(data) != 2 {
		return unitUnknown
	}

	if strings.Contains(strings.ToLower(string(data)), "oz") {
		return unitOz
	}
	if strings.Contains(strings.ToLower(string(data)), "g") {
		return unitGrams
	}

	return unitUnknown
}
