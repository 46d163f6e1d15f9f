package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/radialmx/internal/hidpp"
)

// HIDPPSource reads diverted-button notifications for the gesture control
// straight from the HID++ interface.
type HIDPPSource struct {
	Products []uint16
	CID      uint16
}

func (s *HIDPPSource) Name() string { return "hidpp" }

func (s *HIDPPSource) Open(ctx context.Context) (Reader, error) {
	candidates, err := hidpp.Find(s.Products)
	if err != nil {
		if errors.Is(err, hidpp.ErrNoDevice) {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return nil, err
	}

	var errs []error
	for _, c := range candidates {
		openCtx, cancel := context.WithTimeout(ctx, time.Second)
		dev, err := hidpp.Open(openCtx, c)
		if err != nil {
			cancel()
			errs = append(errs, err)
			continue
		}
		watcher, err := hidpp.NewButtonWatcher(openCtx, dev, s.CID)
		cancel()
		if err != nil {
			dev.Close()
			errs = append(errs, fmt.Errorf("%s: %w", c.Path, err))
			continue
		}
		return &hidppReader{dev: dev, watcher: watcher, path: c.Path}, nil
	}
	return nil, errors.Join(errs...)
}

type hidppReader struct {
	dev     *hidpp.Device
	watcher *hidpp.ButtonWatcher
	path    string
}

func (r *hidppReader) Describe() string {
	return fmt.Sprintf("%s over %s (%s)", r.dev.Name(), r.dev.Connection(), r.path)
}

func (r *hidppReader) Read() (RawButton, error) {
	for msg := range r.dev.Notifications() {
		if pressed, changed := r.watcher.Feed(msg); changed {
			return RawButton{Pressed: pressed, Time: time.Now()}, nil
		}
	}
	if err := r.dev.Err(); err != nil {
		return RawButton{}, err
	}
	return RawButton{}, hidpp.ErrClosed
}

func (r *hidppReader) Close() error {
	return r.dev.Close()
}
