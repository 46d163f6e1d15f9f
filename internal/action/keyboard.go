package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThomasT75/uinput"

	"github.com/bnema/radialmx/internal/logger"
)

// settleDelay is how long a new virtual keyboard needs before the
// compositor reads its events. Keys sent earlier are silently lost.
const settleDelay = 200 * time.Millisecond

// Warmer is a KeySender that can prepare its device ahead of the first chord.
type Warmer interface {
	Warm(ctx context.Context) error
}

// virtualKeyboard is the part of uinput.Keyboard used here.
type virtualKeyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

func createKeyboard(path string) (virtualKeyboard, error) {
	kbd, err := uinput.CreateKeyboard(path, []byte("radialmx virtual keyboard"))
	if err != nil {
		return nil, err
	}
	return kbd, nil
}

// UinputKeyboard types chords on a virtual keyboard. Warm creates it
// ahead of time; otherwise the first chord does and waits for it to settle.
type UinputKeyboard struct {
	Path   string
	Settle time.Duration // zero means settleDelay

	mu        sync.Mutex
	kbd       virtualKeyboard
	createdAt time.Time
	create    func(path string) (virtualKeyboard, error)
}

func (u *UinputKeyboard) Name() string { return "uinput" }

func (u *UinputKeyboard) open() (virtualKeyboard, error) {
	if u.kbd != nil {
		return u.kbd, nil
	}
	path := u.Path
	if path == "" {
		path = "/dev/uinput"
	}
	create := u.create
	if create == nil {
		create = createKeyboard
	}
	kbd, err := create(path)
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	u.kbd = kbd
	u.createdAt = time.Now()
	return kbd, nil
}

// Warm creates the virtual keyboard now so it is registered by the time
// the first shortcut fires.
func (u *UinputKeyboard) Warm(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, err := u.open()
	return err
}

// settle blocks until the keyboard is old enough to be heard.
func (u *UinputKeyboard) settle(ctx context.Context) error {
	d := u.Settle
	if d <= 0 {
		d = settleDelay
	}
	wait := d - time.Since(u.createdAt)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChord presses codes in order and releases them in reverse.
func (u *UinputKeyboard) SendChord(ctx context.Context, codes []uint16, chord string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	kbd, err := u.open()
	if err != nil {
		return err
	}
	if err := u.settle(ctx); err != nil {
		return fmt.Errorf("uinput: keyboard not ready: %w", err)
	}
	pressed := 0
	var sendErr error
	for _, c := range codes {
		if err := kbd.KeyDown(int(c)); err != nil {
			sendErr = err
			break
		}
		pressed++
	}
	for i := pressed - 1; i >= 0; i-- {
		if err := kbd.KeyUp(int(codes[i])); err != nil && sendErr == nil {
			sendErr = err
		}
	}
	if sendErr != nil {
		kbd.Close()
		u.kbd = nil
		return fmt.Errorf("uinput: %w", sendErr)
	}
	return nil
}

// Close removes the virtual keyboard.
func (u *UinputKeyboard) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.kbd == nil {
		return nil
	}
	err := u.kbd.Close()
	u.kbd = nil
	return err
}

// runFunc runs an external tool and waits for it.
type runFunc func(ctx context.Context, name string, args ...string) error

func runTool(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Xdotool types chords through `xdotool key`.
type Xdotool struct {
	run runFunc
}

func (x *Xdotool) Name() string { return "xdotool" }

func (x *Xdotool) SendChord(ctx context.Context, codes []uint16, chord string) error {
	run := x.run
	if run == nil {
		run = runTool
	}
	return run(ctx, "xdotool", "key", "--clearmodifiers", strings.ToLower(chord))
}

// Ydotool types chords through `ydotool key`, which takes raw key codes.
type Ydotool struct {
	run runFunc
}

func (y *Ydotool) Name() string { return "ydotool" }

func (y *Ydotool) SendChord(ctx context.Context, codes []uint16, chord string) error {
	run := y.run
	if run == nil {
		run = runTool
	}
	return run(ctx, "ydotool", append([]string{"key"}, ydotoolSequence(codes)...)...)
}

// ydotoolSequence renders "29:1 46:1 46:0 29:0" style arguments.
func ydotoolSequence(codes []uint16) []string {
	seq := make([]string, 0, 2*len(codes))
	for _, c := range codes {
		seq = append(seq, strconv.Itoa(int(c))+":1")
	}
	for i := len(codes) - 1; i >= 0; i-- {
		seq = append(seq, strconv.Itoa(int(codes[i]))+":0")
	}
	return seq
}

// Chain tries each sender in order until one succeeds.
type Chain []KeySender

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) SendChord(ctx context.Context, codes []uint16, chord string) error {
	var errs []error
	for _, s := range c {
		err := s.SendChord(ctx, codes, chord)
		if err == nil {
			return nil
		}
		logger.Debugf("action: %s could not send %q: %v", s.Name(), chord, err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrNoBackend
	}
	return errors.Join(errs...)
}

// Warm prepares every member that supports it. It fails only when no
// member could be prepared.
func (c Chain) Warm(ctx context.Context) error {
	var errs []error
	warmed := 0
	for _, s := range c {
		w, ok := s.(Warmer)
		if !ok {
			continue
		}
		if err := w.Warm(ctx); err != nil {
			logger.Debugf("action: %s not ready: %v", s.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		warmed++
	}
	if warmed > 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Close closes every member that holds a device.
func (c Chain) Close() error {
	var errs []error
	for _, s := range c {
		if closer, ok := s.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NewKeySender builds the sender for a configured backend name.
func NewKeySender(backend string) (KeySender, error) {
	switch backend {
	case "", "auto":
		return Chain{&UinputKeyboard{}, &Xdotool{}, &Ydotool{}}, nil
	case "uinput":
		return &UinputKeyboard{}, nil
	case "xdotool":
		return &Xdotool{}, nil
	case "ydotool":
		return &Ydotool{}, nil
	default:
		return nil, fmt.Errorf("unknown shortcut backend %q", backend)
	}
}
