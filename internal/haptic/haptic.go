// Package haptic sends best-effort force feedback pulses for menu events.
// Nothing here ever blocks the caller or reports an error upward.
package haptic

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/logger"
)

// Kind is a menu event with a tactile pattern.
type Kind int

const (
	MenuAppear Kind = iota
	SliceChange
	Confirm
	Invalid
)

func (k Kind) String() string {
	switch k {
	case MenuAppear:
		return "menu_appear"
	case SliceChange:
		return "slice_change"
	case Confirm:
		return "confirm"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Pattern is a pulse repeated Count times with Gap between pulses.
type Pattern struct {
	Intensity uint8 // percent
	Duration  time.Duration
	Count     int
	Gap       time.Duration
}

// DefaultPatterns are the built-in pulse shapes.
func DefaultPatterns() map[Kind]Pattern {
	return map[Kind]Pattern{
		MenuAppear:  {Intensity: 20, Duration: 10 * time.Millisecond, Count: 1},
		SliceChange: {Intensity: 40, Duration: 15 * time.Millisecond, Count: 1},
		Confirm:     {Intensity: 80, Duration: 25 * time.Millisecond, Count: 2, Gap: 30 * time.Millisecond},
		Invalid:     {Intensity: 30, Duration: 50 * time.Millisecond, Count: 3, Gap: 20 * time.Millisecond},
	}
}

// Device is an open haptic channel.
type Device interface {
	Haptic(ctx context.Context, intensity uint8, duration time.Duration) error
	Close() error
}

// Opener connects to a haptic device.
type Opener func(ctx context.Context) (Device, error)

// Options configures a Dispatcher.
type Options struct {
	Enabled       bool
	Scale         int // global intensity, percent
	Patterns      map[Kind]Pattern
	SliceDebounce time.Duration
	Reentry       time.Duration
	Cooldown      time.Duration // wait after a failure before reopening
	QueueSize     int
	Open          Opener
}

// OptionsFromConfig maps the haptics section, keeping pattern shapes and
// overriding per-event intensities.
func OptionsFromConfig(cfg config.HapticsConfig, cooldown time.Duration, open Opener) Options {
	patterns := DefaultPatterns()
	override := map[Kind]int{
		MenuAppear:  cfg.MenuAppear,
		SliceChange: cfg.SliceChange,
		Confirm:     cfg.Confirm,
		Invalid:     cfg.Invalid,
	}
	for k, v := range override {
		p := patterns[k]
		p.Intensity = clampPercent(v)
		patterns[k] = p
	}
	return Options{
		Enabled:       cfg.Enabled,
		Scale:         cfg.Intensity,
		Patterns:      patterns,
		SliceDebounce: config.Millis(cfg.SliceDebounceMs),
		Reentry:       config.Millis(cfg.ReentryDebounceMs),
		Cooldown:      cooldown,
		Open:          open,
	}
}

// Dispatcher queues pulses for a single writer goroutine. Pulse and
// SliceChanged never block.
type Dispatcher struct {
	opts  Options
	queue chan Pattern

	mu        sync.Mutex
	lastSlice int
	lastAt    time.Time
	now       func() time.Time

	// owned by Run
	dev      Device
	failedAt time.Time
}

// NewDispatcher creates a dispatcher; call Run to start writing.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Patterns == nil {
		opts.Patterns = DefaultPatterns()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.Scale < 0 {
		opts.Scale = 0
	}
	if opts.Scale > 100 {
		opts.Scale = 100
	}
	return &Dispatcher{
		opts:      opts,
		queue:     make(chan Pattern, opts.QueueSize),
		lastSlice: -1,
		now:       time.Now,
	}
}

// Pulse queues the pattern for kind. It reports whether it was queued.
func (d *Dispatcher) Pulse(kind Kind) bool {
	if !d.opts.Enabled || d.opts.Scale == 0 {
		return false
	}
	p, ok := d.opts.Patterns[kind]
	if !ok {
		return false
	}
	p.Intensity = uint8(int(p.Intensity) * d.opts.Scale / 100)
	if p.Intensity == 0 || p.Count <= 0 {
		return false
	}
	select {
	case d.queue <- p:
		return true
	default:
		logger.Debugf("haptic: queue full, %s dropped", kind)
		return false
	}
}

// SliceChanged pulses for a newly highlighted slice unless the pointer is
// sweeping fast or came back to the same slice right away.
func (d *Dispatcher) SliceChanged(index int) bool {
	if !d.opts.Enabled {
		return false
	}
	d.mu.Lock()
	now := d.now()
	elapsed := now.Sub(d.lastAt)
	if index == d.lastSlice && elapsed < d.opts.Reentry {
		d.mu.Unlock()
		return false
	}
	d.lastSlice = index
	if elapsed < d.opts.SliceDebounce {
		d.mu.Unlock()
		return false
	}
	d.lastAt = now
	d.mu.Unlock()
	return d.Pulse(SliceChange)
}

// ResetSlices forgets slice tracking, used when a menu opens or closes.
func (d *Dispatcher) ResetSlices() {
	d.mu.Lock()
	d.lastSlice = -1
	d.lastAt = time.Time{}
	d.mu.Unlock()
}

// Run writes queued pulses until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	defer func() {
		if d.dev != nil {
			d.dev.Close()
			d.dev = nil
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-d.queue:
			d.play(ctx, p)
		}
	}
}

func (d *Dispatcher) play(ctx context.Context, p Pattern) {
	dev := d.device(ctx)
	if dev == nil {
		return
	}
	for i := 0; i < p.Count; i++ {
		if i > 0 && p.Gap > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.Gap):
			}
		}
		wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		err := dev.Haptic(wctx, p.Intensity, p.Duration)
		cancel()
		if err != nil {
			logger.Debugf("haptic: pulse failed, dropping device: %v", err)
			dev.Close()
			d.dev = nil
			d.failedAt = time.Now()
			return
		}
	}
}

func (d *Dispatcher) device(ctx context.Context) Device {
	if d.dev != nil {
		return d.dev
	}
	if d.opts.Open == nil {
		return nil
	}
	if !d.failedAt.IsZero() && time.Since(d.failedAt) < d.opts.Cooldown {
		return nil
	}
	octx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	dev, err := d.opts.Open(octx)
	if err != nil {
		if d.failedAt.IsZero() {
			logger.Infof("haptic: no device, feedback disabled for now: %v", err)
		}
		d.failedAt = time.Now()
		return nil
	}
	d.dev = dev
	d.failedAt = time.Time{}
	return dev
}

func clampPercent(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return uint8(v)
}
