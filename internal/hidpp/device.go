package hidpp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/bnema/radialmx/internal/logger"
)

// VendorLogitech is the USB vendor ID of every supported device.
const VendorLogitech uint16 = 0x046D

// Known product IDs.
const (
	ProductMXMaster4USB     uint16 = 0xB034
	ProductBoltReceiver     uint16 = 0xC548
	ProductUnifyingReceiver uint16 = 0xC52B
)

// hidppUsagePage is the vendor-defined page carrying HID++ reports.
const hidppUsagePage uint16 = 0xFF00

const (
	requestTimeout = 100 * time.Millisecond
	readPoll       = 100 * time.Millisecond
)

var (
	// ErrNoDevice is returned when no matching HID++ interface exists.
	ErrNoDevice = errors.New("hidpp: no matching device")
	// ErrClosed is returned after the device was closed or lost.
	ErrClosed = errors.New("hidpp: device closed")
	// ErrUnsupported is returned when the device lacks a feature.
	ErrUnsupported = errors.New("hidpp: feature not supported")
)

// ConnectionType describes how the device is attached.
type ConnectionType int

const (
	ConnUSB ConnectionType = iota
	ConnBolt
	ConnUnifying
	ConnBluetooth
)

func (c ConnectionType) String() string {
	switch c {
	case ConnUSB:
		return "usb"
	case ConnBolt:
		return "bolt"
	case ConnUnifying:
		return "unifying"
	case ConnBluetooth:
		return "bluetooth"
	default:
		return "unknown"
	}
}

// Transport is the raw report channel. *hid.Device satisfies it.
type Transport interface {
	Write(p []byte) (int, error)
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Candidate is an enumerated HID++ interface.
type Candidate struct {
	Path        string
	ProductID   uint16
	Product     string
	Conn        ConnectionType
	DeviceIndex byte
}

var initOnce sync.Once
var initErr error

// Find enumerates Logitech HID++ interfaces. An empty products list matches
// any product on the HID++ usage page.
func Find(products []uint16) ([]Candidate, error) {
	initOnce.Do(func() { initErr = hid.Init() })
	if initErr != nil {
		return nil, fmt.Errorf("hidpp: init hidapi: %w", initErr)
	}

	var out []Candidate
	err := hid.Enumerate(VendorLogitech, 0, func(info *hid.DeviceInfo) error {
		if info.UsagePage != hidppUsagePage {
			return nil
		}
		if len(products) > 0 && !containsProduct(products, info.ProductID) {
			return nil
		}
		c := Candidate{Path: info.Path, ProductID: info.ProductID, Product: info.ProductStr}
		switch info.ProductID {
		case ProductBoltReceiver:
			c.Conn, c.DeviceIndex = ConnBolt, IndexReceiver
		case ProductUnifyingReceiver:
			c.Conn, c.DeviceIndex = ConnUnifying, IndexReceiver
		default:
			c.Conn, c.DeviceIndex = ConnUSB, IndexDirect
			if info.BusType == hid.BusBluetooth {
				c.Conn = ConnBluetooth
			}
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hidpp: enumerate: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoDevice
	}
	return out, nil
}

func containsProduct(products []uint16, pid uint16) bool {
	for _, p := range products {
		if p == pid {
			return true
		}
	}
	return false
}

// Device is an open HID++ 2.0 interface. One goroutine reads reports and
// routes responses to pending requests and notifications to a channel.
type Device struct {
	t     Transport
	index byte
	conn  ConnectionType
	name  string

	writeMu sync.Mutex
	swid    byte

	mu       sync.Mutex
	pending  map[byte]pendingRequest // keyed by software id
	features map[uint16]byte
	err      error

	notify chan Message
	done   chan struct{}
	once   sync.Once
}

// pendingRequest waits for the response to one request. Other handles on
// the same hidraw node see our traffic, so responses must match the
// feature index and function as well as the software id.
type pendingRequest struct {
	ch           chan Message
	featureIndex byte
	function     byte
}

func (p pendingRequest) matches(msg Message) bool {
	if msg.IsError() {
		return msg.Param(0) == p.featureIndex && msg.Param(1)>>4 == p.function
	}
	return msg.FeatureIndex == p.featureIndex && msg.Function == p.function
}

// Open opens a candidate and verifies it speaks HID++ 2.0.
func Open(ctx context.Context, c Candidate) (*Device, error) {
	h, err := hid.OpenPath(c.Path)
	if err != nil {
		return nil, fmt.Errorf("hidpp: open %s: %w", c.Path, err)
	}
	d := NewDevice(h, c.DeviceIndex, c.Conn, c.Product)
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("hidpp: %s is not HID++ 2.0: %w", c.Path, err)
	}
	logger.Infof("hidpp: connected to %s over %s", strings.TrimSpace(c.Product), c.Conn)
	return d, nil
}

// NewDevice wraps an already open transport and starts its reader.
func NewDevice(t Transport, index byte, conn ConnectionType, name string) *Device {
	d := &Device{
		t:        t,
		index:    index,
		conn:     conn,
		name:     name,
		swid:     0x01,
		pending:  make(map[byte]pendingRequest),
		features: make(map[uint16]byte),
		notify:   make(chan Message, 32),
		done:     make(chan struct{}),
	}
	go d.readLoop()
	return d
}

// Name returns the product string reported by the OS.
func (d *Device) Name() string { return d.name }

// Connection returns how the device is attached.
func (d *Device) Connection() ConnectionType { return d.conn }

// Notifications delivers unsolicited reports. It is closed when the device
// is lost or closed.
func (d *Device) Notifications() <-chan Message { return d.notify }

// Done is closed when the reader stops.
func (d *Device) Done() <-chan struct{} { return d.done }

// Err returns the read error that stopped the device, if any.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close stops the reader and closes the transport. The transport is only
// closed once the reader has returned.
func (d *Device) Close() error {
	var err error
	d.once.Do(func() {
		d.fail(ErrClosed)
		<-d.done
		err = d.t.Close()
	})
	return err
}

func (d *Device) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	for id, p := range d.pending {
		close(p.ch)
		delete(d.pending, id)
	}
	d.mu.Unlock()
}

func (d *Device) readLoop() {
	defer close(d.done)
	defer close(d.notify)

	buf := make([]byte, VeryLongLen)
	for {
		if d.Err() != nil {
			return
		}
		n, err := d.t.ReadWithTimeout(buf, readPoll)
		if err != nil {
			if errors.Is(err, hid.ErrTimeout) {
				continue
			}
			d.fail(fmt.Errorf("hidpp: read: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		msg, err := Decode(buf[:n])
		if err != nil {
			// Other report IDs share the interface on receivers.
			continue
		}
		d.route(msg)
	}
}

func (d *Device) route(msg Message) {
	if msg.IsError() {
		swid := msg.Param(1) & 0x0F
		d.deliver(swid, msg)
		return
	}
	if msg.IsNotification() {
		select {
		case d.notify <- msg:
		default:
			logger.Debug("hidpp: notification dropped, consumer is slow")
		}
		return
	}
	d.deliver(msg.SoftwareID, msg)
}

func (d *Device) deliver(swid byte, msg Message) {
	d.mu.Lock()
	p, ok := d.pending[swid]
	if ok && !p.matches(msg) {
		ok = false
	}
	if ok {
		delete(d.pending, swid)
	}
	d.mu.Unlock()
	if ok {
		p.ch <- msg
	}
}

func (d *Device) nextSWID() byte {
	id := d.swid
	if d.swid >= 0x0F {
		d.swid = 0x01
	} else {
		d.swid++
	}
	return id
}

// send writes a request for featureID and, when wait is set, waits for the
// matching response.
func (d *Device) send(ctx context.Context, featureID uint16, featureIndex, function byte, wait bool, params ...byte) (Message, error) {
	if err := CheckWrite(featureID); err != nil {
		return Message{}, err
	}
	if err := d.Err(); err != nil {
		return Message{}, err
	}

	d.writeMu.Lock()
	swid := d.nextSWID()
	var ch chan Message
	if wait {
		ch = make(chan Message, 1)
		d.mu.Lock()
		d.pending[swid] = pendingRequest{ch: ch, featureIndex: featureIndex, function: function}
		d.mu.Unlock()
	}
	raw, err := ShortRequest(d.index, featureIndex, function, swid, params...).Encode()
	if err == nil {
		_, err = d.t.Write(raw)
	}
	d.writeMu.Unlock()

	if err != nil {
		if wait {
			d.mu.Lock()
			delete(d.pending, swid)
			d.mu.Unlock()
		}
		return Message{}, fmt.Errorf("hidpp: write: %w", err)
	}
	if !wait {
		return Message{}, nil
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return Message{}, d.Err()
		}
		if msg.IsError() {
			return Message{}, asDeviceError(msg)
		}
		return msg, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	d.mu.Lock()
	delete(d.pending, swid)
	d.mu.Unlock()
	if ctx.Err() != nil {
		return Message{}, ctx.Err()
	}
	return Message{}, fmt.Errorf("hidpp: request to feature 0x%04X timed out", featureID)
}

// Ping runs the IRoot ping and checks the echoed byte.
func (d *Device) Ping(ctx context.Context) error {
	resp, err := d.send(ctx, FeatureRoot, 0x00, 0x01, true, 0x00, 0x00, 0xAA)
	if err != nil {
		return err
	}
	if resp.Param(2) != 0xAA {
		return fmt.Errorf("hidpp: ping echo mismatch 0x%02X", resp.Param(2))
	}
	return nil
}

// FeatureIndex resolves a feature ID through IRoot. Results are cached for
// the lifetime of the connection.
func (d *Device) FeatureIndex(ctx context.Context, feature uint16) (byte, error) {
	d.mu.Lock()
	idx, ok := d.features[feature]
	d.mu.Unlock()
	if ok {
		if idx == 0 {
			return 0, ErrUnsupported
		}
		return idx, nil
	}

	resp, err := d.send(ctx, FeatureRoot, 0x00, 0x00, true, byte(feature>>8), byte(feature), 0x00)
	if err != nil {
		return 0, err
	}
	idx = resp.Param(0)

	d.mu.Lock()
	d.features[feature] = idx
	d.mu.Unlock()

	if idx == 0 {
		return 0, ErrUnsupported
	}
	return idx, nil
}

// Haptic sends one volatile force-feedback pulse. It does not wait for an
// acknowledgement.
func (d *Device) Haptic(ctx context.Context, intensity uint8, duration time.Duration) error {
	idx, err := d.FeatureIndex(ctx, FeatureForceFeedback)
	if err != nil {
		return err
	}
	ms := duration.Milliseconds()
	if ms > 0xFFFF {
		ms = 0xFFFF
	}
	if intensity > 100 {
		intensity = 100
	}
	_, err = d.send(ctx, FeatureForceFeedback, idx, 0x00, false, intensity, byte(ms>>8), byte(ms))
	return err
}
