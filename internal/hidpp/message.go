// Package hidpp implements the subset of Logitech HID++ 2.0 the daemon needs:
// reading diverted-button notifications, sending volatile haptic pulses and
// reading the battery level.
package hidpp

import (
	"errors"
	"fmt"
)

// Report IDs and their total lengths.
const (
	ReportShort    byte = 0x10
	ReportLong     byte = 0x11
	ReportVeryLong byte = 0x12

	ShortLen    = 7
	LongLen     = 20
	VeryLongLen = 64
)

// Device indexes.
const (
	IndexDirect   byte = 0xFF // corded or Bluetooth device
	IndexReceiver byte = 0x01 // first device paired to a Bolt/Unifying receiver
)

// errorFeatureIndex marks a HID++ 2.0 error response.
const errorFeatureIndex byte = 0xFF

// ErrShortReport is returned by Decode for truncated input.
var ErrShortReport = errors.New("hidpp: short report")

// Message is one HID++ 2.0 report.
type Message struct {
	ReportID     byte
	DeviceIndex  byte
	FeatureIndex byte
	Function     byte // upper nibble of byte 3
	SoftwareID   byte // lower nibble of byte 3, zero for notifications
	Params       []byte
}

func reportLen(id byte) int {
	switch id {
	case ReportShort:
		return ShortLen
	case ReportLong:
		return LongLen
	case ReportVeryLong:
		return VeryLongLen
	default:
		return 0
	}
}

// Encode serializes the message, zero-padding params to the report length.
func (m Message) Encode() ([]byte, error) {
	n := reportLen(m.ReportID)
	if n == 0 {
		return nil, fmt.Errorf("hidpp: unknown report id 0x%02X", m.ReportID)
	}
	if len(m.Params) > n-4 {
		return nil, fmt.Errorf("hidpp: %d params do not fit report 0x%02X", len(m.Params), m.ReportID)
	}
	b := make([]byte, n)
	b[0] = m.ReportID
	b[1] = m.DeviceIndex
	b[2] = m.FeatureIndex
	b[3] = (m.Function&0x0F)<<4 | m.SoftwareID&0x0F
	copy(b[4:], m.Params)
	return b, nil
}

// Decode parses a raw report.
func Decode(b []byte) (Message, error) {
	if len(b) < 4 {
		return Message{}, ErrShortReport
	}
	n := reportLen(b[0])
	if n == 0 {
		return Message{}, fmt.Errorf("hidpp: unknown report id 0x%02X", b[0])
	}
	if len(b) < n {
		return Message{}, fmt.Errorf("%w: got %d bytes for report 0x%02X", ErrShortReport, len(b), b[0])
	}
	params := make([]byte, n-4)
	copy(params, b[4:n])
	return Message{
		ReportID:     b[0],
		DeviceIndex:  b[1],
		FeatureIndex: b[2],
		Function:     b[3] >> 4,
		SoftwareID:   b[3] & 0x0F,
		Params:       params,
	}, nil
}

// IsError reports whether the message is a HID++ 2.0 error response.
func (m Message) IsError() bool {
	return m.FeatureIndex == errorFeatureIndex
}

// IsNotification reports whether the device sent the message unsolicited.
func (m Message) IsNotification() bool {
	return m.SoftwareID == 0 && !m.IsError()
}

// Param returns params[i] or zero.
func (m Message) Param(i int) byte {
	if i < 0 || i >= len(m.Params) {
		return 0
	}
	return m.Params[i]
}

// ShortRequest builds a short report for a device.
func ShortRequest(device, featureIndex, function, swid byte, params ...byte) Message {
	return Message{
		ReportID:     ReportShort,
		DeviceIndex:  device,
		FeatureIndex: featureIndex,
		Function:     function,
		SoftwareID:   swid,
		Params:       params,
	}
}

// Error codes of HID++ 2.0 error responses.
var errorNames = map[byte]string{
	0x01: "unknown",
	0x02: "invalid argument",
	0x03: "out of range",
	0x04: "hardware error",
	0x05: "logitech internal",
	0x06: "invalid feature index",
	0x07: "invalid function",
	0x08: "busy",
	0x09: "unsupported",
}

// DeviceError is a HID++ 2.0 error response.
type DeviceError struct {
	FeatureIndex byte
	Function     byte
	Code         byte
}

func (e *DeviceError) Error() string {
	name, ok := errorNames[e.Code]
	if !ok {
		name = "code"
	}
	return fmt.Sprintf("hidpp: feature %d function %d: %s (0x%02X)", e.FeatureIndex, e.Function, name, e.Code)
}

// asDeviceError converts an error response. Params hold the original
// feature index, function/swid byte and the error code.
func asDeviceError(m Message) *DeviceError {
	return &DeviceError{
		FeatureIndex: m.Param(0),
		Function:     m.Param(1) >> 4,
		Code:         m.Param(2),
	}
}
