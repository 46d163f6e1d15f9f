// Package action executes the action bound to a selected slice.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/radialmx/internal/keys"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/profile"
)

// Outcome describes one dispatch. Err is nil on success.
type Outcome struct {
	Kind    profile.ActionKind
	Label   string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the action ran.
func (o Outcome) OK() bool { return o.Err == nil }

// KeySender synthesizes a key chord given in press order.
type KeySender interface {
	Name() string
	SendChord(ctx context.Context, codes []uint16, chord string) error
}

// Spawner starts a process without waiting for it.
type Spawner interface {
	Spawn(argv []string) (pid int, err error)
}

// Caller performs a remote method call.
type Caller interface {
	Call(ctx context.Context, ep profile.Endpoint, args []any) error
}

// ErrNoBackend is returned when an action kind has nothing to run it.
var ErrNoBackend = errors.New("no backend for action")

// Dispatcher runs slice actions. Each kind fails on its own without
// affecting the caller.
type Dispatcher struct {
	Keys          KeySender
	Spawner       Spawner
	Caller        Caller
	RemoteTimeout time.Duration
}

// Dispatch executes a and reports how it went. It never panics on a bad
// action and never waits for spawned processes.
func (d *Dispatcher) Dispatch(ctx context.Context, a profile.SliceAction) (out Outcome) {
	start := time.Now()
	out = Outcome{Kind: a.Kind, Label: a.Label}
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("action panicked: %v", r)
		}
		out.Elapsed = time.Since(start)
		if out.Err != nil {
			logger.Warnf("action: %s %q failed: %v", out.Kind, out.Label, out.Err)
		} else {
			logger.Debugf("action: %s %q done in %s", out.Kind, out.Label, out.Elapsed)
		}
	}()

	switch a.Kind {
	case profile.KindNone, "":
		out.Kind = profile.KindNone
	case profile.KindShortcut:
		out.Err = d.shortcut(ctx, a.Keys)
	case profile.KindCommand:
		out.Err = d.command(a)
	case profile.KindRemoteCall:
		out.Err = d.remote(ctx, a)
	default:
		out.Err = fmt.Errorf("unknown action type %q", a.Kind)
	}
	return out
}

func (d *Dispatcher) shortcut(ctx context.Context, chord string) error {
	if d.Keys == nil {
		return fmt.Errorf("shortcut: %w", ErrNoBackend)
	}
	codes, err := keys.ParseShortcut(chord)
	if err != nil {
		return err
	}
	return d.Keys.SendChord(ctx, codes, chord)
}

func (d *Dispatcher) command(a profile.SliceAction) error {
	if d.Spawner == nil {
		return fmt.Errorf("command: %w", ErrNoBackend)
	}
	argv, err := a.CommandArgv()
	if err != nil {
		return err
	}
	pid, err := d.Spawner.Spawn(argv)
	if err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	logger.Debugf("action: started %s (pid %d)", argv[0], pid)
	return nil
}

func (d *Dispatcher) remote(ctx context.Context, a profile.SliceAction) error {
	if d.Caller == nil {
		return fmt.Errorf("remote call: %w", ErrNoBackend)
	}
	if a.Endpoint == nil {
		return errors.New("remote call without endpoint")
	}
	timeout := d.RemoteTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.Caller.Call(cctx, *a.Endpoint, a.Args); err != nil {
		return fmt.Errorf("%s: %w", a.Endpoint.Member(), err)
	}
	return nil
}
