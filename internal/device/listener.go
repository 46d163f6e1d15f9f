package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/radialmx/internal/logger"
)

// Hotplug wakes the listener early when device nodes change.
type Hotplug interface {
	Run(ctx context.Context, fn func(Change)) error
}

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Sources  []Source
	Debounce time.Duration
	Retry    time.Duration
	Cooldown time.Duration // minimum gap between reopening a lost device
	Hotplug  Hotplug       // optional
	Buffer   int
}

// Listener owns the device handle. It opens the first source that works,
// publishes debounced button events and reopens after loss.
type Listener struct {
	sources  []Source
	debounce Debouncer
	retry    time.Duration
	cooldown time.Duration
	hotplug  Hotplug
	events   chan Event

	// wake coalesces hotplug notifications
	wake chan struct{}

	degraded bool
	current  string
	lostAt   time.Time
}

// NewListener creates a listener. Call Run to start it.
func NewListener(opts ListenerOptions) *Listener {
	if opts.Retry <= 0 {
		opts.Retry = 2 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	return &Listener{
		sources:  opts.Sources,
		debounce: Debouncer{Window: opts.Debounce},
		retry:    opts.Retry,
		cooldown: opts.Cooldown,
		hotplug:  opts.Hotplug,
		events:   make(chan Event, opts.Buffer),
		wake:     make(chan struct{}, 1),
	}
}

// Events is closed when Run returns.
func (l *Listener) Events() <-chan Event { return l.events }

// pump carries one reader's output to the run loop.
type pump struct {
	reader Reader
	raw    chan RawButton
	err    chan error
	stop   chan struct{}
}

func startPump(r Reader) *pump {
	p := &pump{
		reader: r,
		raw:    make(chan RawButton),
		err:    make(chan error, 1),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			b, err := r.Read()
			if err != nil {
				p.err <- err
				return
			}
			select {
			case p.raw <- b:
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

func (p *pump) close() {
	close(p.stop)
	p.reader.Close()
}

// Run discovers the device and reads it until ctx is done. Device errors
// never end Run.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.events)

	if len(l.sources) == 0 {
		return errors.New("device: no sources configured")
	}

	if l.hotplug != nil {
		go func() {
			if err := l.hotplug.Run(ctx, l.onHotplug); err != nil {
				logger.Warnf("device: hotplug monitor stopped: %v", err)
			}
		}()
	}

	retry := time.NewTicker(l.retry)
	defer retry.Stop()

	flush := time.NewTimer(time.Hour)
	flush.Stop()
	defer flush.Stop()

	var p *pump
	defer func() {
		if p != nil {
			p.close()
		}
	}()

	for {
		if p == nil {
			if wait := l.cooldown - time.Since(l.lostAt); !l.lostAt.IsZero() && wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
			r, err := l.open(ctx)
			if err == nil {
				p = startPump(r)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			l.enterDegraded(ctx, err)
			select {
			case <-ctx.Done():
				return nil
			case <-retry.C:
			case <-l.wake:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil

		case b := <-p.raw:
			if at, ok := l.debounce.Flush(b.Time); ok {
				l.publish(ctx, Event{Kind: Released, Time: at, Device: l.current})
			}
			kind, verdict := l.debounce.Feed(b)
			switch verdict {
			case Emit:
				l.publish(ctx, Event{Kind: kind, Time: b.Time, Device: l.current})
			case Held:
				if due, ok := l.debounce.Due(); ok {
					flush.Reset(time.Until(due))
				}
			case Merged:
				logger.Debugf("device: %s merged within %s", kind, l.debounce.Window)
			case OutOfOrder:
				logger.Warnf("device: out-of-order %s ignored", kind)
			}

		case <-flush.C:
			if at, ok := l.debounce.Flush(time.Now()); ok {
				l.publish(ctx, Event{Kind: Released, Time: at, Device: l.current})
			}

		case err := <-p.err:
			p.close()
			p = nil
			flush.Stop()
			l.debounce.Reset()
			logger.Warnf("device: %s lost: %v", l.current, err)
			l.lostAt = time.Now()
			l.publish(ctx, Event{Kind: Lost, Time: l.lostAt, Device: l.current, Err: err})
			l.current = ""
		}
	}
}

func (l *Listener) open(ctx context.Context) (Reader, error) {
	var errs []error
	for _, src := range l.sources {
		r, err := src.Open(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		l.current = r.Describe()
		if l.degraded {
			l.degraded = false
			logger.Infof("device: recovered on %s", l.current)
			l.publish(ctx, Event{Kind: Recovered, Time: time.Now(), Device: l.current})
		}
		return r, nil
	}
	return nil, errors.Join(errs...)
}

func (l *Listener) enterDegraded(ctx context.Context, err error) {
	if l.degraded {
		logger.Debugf("device: still unavailable: %v", err)
		return
	}
	l.degraded = true
	logger.Warnf("device: degraded, retrying every %s: %v", l.retry, err)
	l.publish(ctx, Event{Kind: Degraded, Time: time.Now(), Err: err})
}

func (l *Listener) onHotplug(c Change) {
	if c.Type != DeviceAdded {
		return
	}
	// Give udev a moment to apply permissions on the new node.
	time.AfterFunc(250*time.Millisecond, func() {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	})
}

func (l *Listener) publish(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}
