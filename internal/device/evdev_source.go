package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/bnema/radialmx/internal/logger"
)

// EvdevSource reads the key the gesture button is diverted to. The device
// is never grabbed so other consumers keep receiving its events.
type EvdevSource struct {
	Path       string   // explicit device path, skips discovery
	DeviceName string   // substring of the device name
	Vendor     uint16   // zero matches any vendor
	Products   []uint16 // empty matches any product
	Code       uint16   // trigger key code
	Glob       string
}

func (s *EvdevSource) Name() string { return "evdev" }

// Open picks the first device advertising the trigger key that matches the
// configured filters.
func (s *EvdevSource) Open(ctx context.Context) (Reader, error) {
	if s.Path != "" {
		dev, err := evdev.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.Path, err)
		}
		if !hasKey(dev, s.Code) {
			dev.File.Close()
			return nil, fmt.Errorf("%s does not report key code %d", s.Path, s.Code)
		}
		return newEvdevReader(dev, s.Code), nil
	}

	glob := s.Glob
	if glob == "" {
		glob = "/dev/input/event*"
	}
	devices, err := evdev.ListInputDevices(glob)
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var chosen *evdev.InputDevice
	for _, dev := range devices {
		if chosen == nil && s.matches(dev) {
			chosen = dev
			continue
		}
		dev.File.Close()
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: no device reports key code %d", ErrNoDevice, s.Code)
	}

	// ListInputDevices opens read-only handles; reopen for a fresh stream.
	path := chosen.Fn
	chosen.File.Close()
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Infof("device: listening on %s (%s)", dev.Name, dev.Fn)
	return newEvdevReader(dev, s.Code), nil
}

func (s *EvdevSource) matches(dev *evdev.InputDevice) bool {
	if !hasKey(dev, s.Code) {
		return false
	}
	if s.DeviceName != "" {
		return strings.Contains(strings.ToLower(dev.Name), strings.ToLower(s.DeviceName))
	}
	if s.Vendor != 0 && dev.Vendor != s.Vendor {
		return false
	}
	if len(s.Products) > 0 {
		for _, p := range s.Products {
			if dev.Product == p {
				return true
			}
		}
		return false
	}
	return true
}

func hasKey(dev *evdev.InputDevice, code uint16) bool {
	for _, c := range dev.CapabilitiesFlat[evdev.EV_KEY] {
		if c == int(code) {
			return true
		}
	}
	return false
}

// evdevReader filters EV_KEY events of one code out of the device stream.
type evdevReader struct {
	dev    *evdev.InputDevice
	code   uint16
	mu     sync.Mutex
	queue  []evdev.InputEvent
	closed bool
}

func newEvdevReader(dev *evdev.InputDevice, code uint16) *evdevReader {
	return &evdevReader{dev: dev, code: code}
}

func (r *evdevReader) Describe() string {
	return fmt.Sprintf("%s (%s)", r.dev.Name, r.dev.Fn)
}

func (r *evdevReader) Read() (RawButton, error) {
	for {
		for len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			if ev.Type != evdev.EV_KEY || ev.Code != r.code {
				continue
			}
			// value 2 is autorepeat
			switch ev.Value {
			case 1:
				return RawButton{Pressed: true, Time: eventTime(ev)}, nil
			case 0:
				return RawButton{Pressed: false, Time: eventTime(ev)}, nil
			}
		}

		events, err := r.dev.Read()
		if err != nil {
			return RawButton{}, err
		}
		r.queue = events
	}
}

func (r *evdevReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.dev.File.Close()
}

// eventTime prefers the kernel timestamp, falling back to now.
func eventTime(ev evdev.InputEvent) time.Time {
	if ev.Time.Sec == 0 && ev.Time.Usec == 0 {
		return time.Now()
	}
	return time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000)
}
