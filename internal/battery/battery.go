// Package battery polls the mouse battery over HID++ and keeps the last
// reading for the status surfaces.
package battery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/radialmx/internal/hidpp"
	"github.com/bnema/radialmx/internal/logger"
)

// quietAfter is the number of consecutive failures logged as warnings.
const quietAfter = 3

// Status is the last known battery state.
type Status struct {
	Available bool
	Percent   uint8
	Charging  bool
	Error     string
	UpdatedAt time.Time
}

func (s Status) String() string {
	if !s.Available {
		if s.Error == "" {
			return "unknown"
		}
		return "unavailable (" + s.Error + ")"
	}
	if s.Charging {
		return fmt.Sprintf("%d%% (charging)", s.Percent)
	}
	return fmt.Sprintf("%d%%", s.Percent)
}

// same reports whether two readings differ only in time.
func (s Status) same(o Status) bool {
	return s.Available == o.Available && s.Percent == o.Percent &&
		s.Charging == o.Charging && s.Error == o.Error
}

// Device answers battery queries.
type Device interface {
	Battery(ctx context.Context) (hidpp.Battery, error)
	Close() error
}

// Opener connects to a device with a battery feature.
type Opener func(ctx context.Context) (Device, error)

// Monitor polls the battery every Interval from Run.
type Monitor struct {
	Interval time.Duration
	Open     Opener
	// OnChange is called from Run whenever the reading changes.
	OnChange func(Status)

	mu     sync.RWMutex
	status Status

	// owned by Run
	dev      Device
	failures int
}

// Status returns the last reading.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run queries once right away and then every Interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	defer func() {
		if m.dev != nil {
			m.dev.Close()
			m.dev = nil
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.update(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) update(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	next := Status{UpdatedAt: time.Now()}
	b, err := m.query(qctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.failures++
		switch {
		case m.failures <= quietAfter:
			logger.Warnf("battery: query failed: %v", err)
		case m.failures == quietAfter+1:
			logger.Info("battery: queries keep failing, suppressing further warnings")
		}
		next.Error = err.Error()
	} else {
		if m.failures > 0 {
			logger.Infof("battery: reading again after %d failure(s)", m.failures)
		}
		m.failures = 0
		next.Available = true
		next.Percent = b.Percent
		next.Charging = b.Charging
	}

	m.mu.Lock()
	changed := !m.status.same(next) || m.status.UpdatedAt.IsZero()
	m.status = next
	m.mu.Unlock()

	if changed {
		logger.Debugf("battery: %s", next)
		if m.OnChange != nil {
			m.OnChange(next)
		}
	}
}

func (m *Monitor) query(ctx context.Context) (hidpp.Battery, error) {
	if m.dev == nil {
		if m.Open == nil {
			return hidpp.Battery{}, hidpp.ErrNoDevice
		}
		dev, err := m.Open(ctx)
		if err != nil {
			return hidpp.Battery{}, err
		}
		m.dev = dev
	}
	b, err := m.dev.Battery(ctx)
	if err != nil {
		m.dev.Close()
		m.dev = nil
		return hidpp.Battery{}, err
	}
	return b, nil
}
