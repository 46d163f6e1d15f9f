// Package bus publishes the daemon on the D-Bus session bus: session
// signals, renderer requests, battery status and the compositor cursor
// callback.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/battery"
	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/session"
	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Well-known names of the daemon object.
const (
	ServiceName = "org.radialmx.Daemon"
	ObjectPath  = dbus.ObjectPath("/org/radialmx/Daemon")
	Interface   = "org.radialmx.Daemon"
)

// ErrNameTaken means another process owns ServiceName.
var ErrNameTaken = errors.New("dbus name already owned")

// Controller is the part of the session machine exposed on the bus.
type Controller interface {
	ReportHover(ctx context.Context, id uint64, angle, distance float64) (int, error)
	QueryActiveSession(ctx context.Context) (*session.Summary, error)
	Acknowledge(ctx context.Context, id uint64) (bool, error)
}

// BatterySource reports the last battery reading.
type BatterySource interface {
	Status() battery.Status
}

type signal struct {
	name string
	args []any
}

// Service owns the exported object and a signal queue drained by Run.
type Service struct {
	conn     *dbus.Conn
	callback *cursor.Callback
	timeout  time.Duration

	mu      sync.Mutex
	ctrl    Controller
	battery BatterySource

	signals chan signal
	emit    func(name string, args ...any) error
	log     *log.Logger
}

// NewService prepares the service on conn. callback may be nil when no
// compositor script reports positions.
func NewService(conn *dbus.Conn, callback *cursor.Callback) *Service {
	s := &Service{
		conn:     conn,
		callback: callback,
		timeout:  time.Second,
		signals:  make(chan signal, 64),
		log:      logger.With("component", "dbus"),
	}
	s.emit = func(name string, args ...any) error {
		return s.conn.Emit(ObjectPath, Interface+"."+name, args...)
	}
	return s
}

// Bind attaches the controller serving method calls.
func (s *Service) Bind(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
}

// BindBattery attaches the battery reading served by GetBattery.
func (s *Service) BindBattery(src BatterySource) {
	s.mu.Lock()
	s.battery = src
	s.mu.Unlock()
}

func (s *Service) batterySource() BatterySource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battery
}

func (s *Service) controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Start exports the object and claims ServiceName.
func (s *Service) Start() error {
	if s.conn == nil {
		return fmt.Errorf("no session bus connection")
	}
	m := &methods{s: s}
	if err := s.conn.Export(m, ObjectPath, Interface); err != nil {
		return fmt.Errorf("failed to export %s: %w", ObjectPath, err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(m),
				Signals: signalSpecs,
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, ServiceName)
	}
	s.log.Info("dbus service registered", "name", ServiceName, "path", ObjectPath)
	return nil
}

// Stop releases the name and unexports the object.
func (s *Service) Stop() {
	if s.conn == nil {
		return
	}
	if _, err := s.conn.ReleaseName(ServiceName); err != nil {
		s.log.Debug("release name failed", "err", err)
	}
	s.conn.Export(nil, ObjectPath, Interface)
	s.conn.Export(nil, ObjectPath, "org.freedesktop.DBus.Introspectable")
}

// Run emits queued signals in order until ctx ends.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.signals:
			if err := s.emit(sig.name, sig.args...); err != nil {
				s.log.Warn("failed to emit signal", "signal", sig.name, "err", err)
			}
		}
	}
}

func (s *Service) queue(name string, args ...any) {
	select {
	case s.signals <- signal{name: name, args: args}:
	default:
		s.log.Warn("signal queue full, dropping", "signal", name)
	}
}

// SessionOpened implements session.Emitter.
func (s *Service) SessionOpened(ev session.Opened) {
	s.queue("SessionOpened", ev.ID, ev.Anchor.X, ev.Anchor.Y, ev.Profile.Name, ev.Profile.Labels())
}

// SliceHighlighted implements session.Emitter.
func (s *Service) SliceHighlighted(id uint64, index int) {
	s.queue("SliceHighlighted", id, int32(index))
}

// SessionOutcome implements session.Emitter.
func (s *Service) SessionOutcome(id uint64, o session.Outcome) {
	slice := int32(session.NoSlice)
	if o.Kind == session.Fired {
		slice = int32(o.Slice)
	}
	s.queue("SessionOutcome", id, o.Kind.String(), slice, o.Reason)
}

// ActionResult implements session.Emitter.
func (s *Service) ActionResult(id uint64, r action.Outcome) {
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	s.queue("ActionResult", id, r.OK(), msg)
}

// BatteryChanged announces a new battery reading.
func (s *Service) BatteryChanged(st battery.Status) {
	s.queue("BatteryChanged", st.Available, st.Percent, st.Charging)
}

var signalSpecs = []introspect.Signal{
	{Name: "SessionOpened", Args: []introspect.Arg{
		{Name: "session_id", Type: "t"}, {Name: "anchor_x", Type: "d"}, {Name: "anchor_y", Type: "d"},
		{Name: "profile", Type: "s"}, {Name: "labels", Type: "as"},
	}},
	{Name: "SliceHighlighted", Args: []introspect.Arg{
		{Name: "session_id", Type: "t"}, {Name: "index", Type: "i"},
	}},
	{Name: "SessionOutcome", Args: []introspect.Arg{
		{Name: "session_id", Type: "t"}, {Name: "outcome", Type: "s"}, {Name: "slice", Type: "i"}, {Name: "reason", Type: "s"},
	}},
	{Name: "ActionResult", Args: []introspect.Arg{
		{Name: "session_id", Type: "t"}, {Name: "ok", Type: "b"}, {Name: "error", Type: "s"},
	}},
	{Name: "BatteryChanged", Args: []introspect.Arg{
		{Name: "available", Type: "b"}, {Name: "percent", Type: "y"}, {Name: "charging", Type: "b"},
	}},
}

var errorNames = map[error]string{
	session.ErrNoSession:      Interface + ".Error.NoSession",
	session.ErrStaleSession:   Interface + ".Error.StaleSession",
	session.ErrNotOpen:        Interface + ".Error.NotOpen",
	session.ErrUnknownSession: Interface + ".Error.UnknownSession",
	session.ErrInvalidHover:   Interface + ".Error.InvalidHover",
	session.ErrStopped:        Interface + ".Error.Stopped",
}

func busError(err error) *dbus.Error {
	for sentinel, name := range errorNames {
		if errors.Is(err, sentinel) {
			return dbus.NewError(name, []any{err.Error()})
		}
	}
	return dbus.MakeFailedError(err)
}

// methods is the exported object. Every exported method is callable on the bus.
type methods struct {
	s *Service
}

func (m *methods) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.s.timeout)
}

// ReportCursorPosition receives the compositor's logical cursor position.
func (m *methods) ReportCursorPosition(x, y int32) *dbus.Error {
	if m.s.callback != nil {
		m.s.callback.Deliver(float64(x), float64(y))
	}
	return nil
}

// ReportHover maps a renderer pointer report to a slice index.
func (m *methods) ReportHover(id uint64, angle, distance float64) (int32, *dbus.Error) {
	ctrl := m.s.controller()
	if ctrl == nil {
		return 0, busError(session.ErrStopped)
	}
	ctx, cancel := m.ctx()
	defer cancel()
	idx, err := ctrl.ReportHover(ctx, id, angle, distance)
	if err != nil {
		return 0, busError(err)
	}
	return int32(idx), nil
}

// QueryActiveSession returns the active session as a{sv}, empty when idle.
func (m *methods) QueryActiveSession() (map[string]dbus.Variant, *dbus.Error) {
	ctrl := m.s.controller()
	if ctrl == nil {
		return nil, busError(session.ErrStopped)
	}
	ctx, cancel := m.ctx()
	defer cancel()
	sum, err := ctrl.QueryActiveSession(ctx)
	if err != nil {
		return nil, busError(err)
	}
	out := map[string]dbus.Variant{}
	if sum == nil {
		return out, nil
	}
	out["session_id"] = dbus.MakeVariant(sum.ID)
	out["state"] = dbus.MakeVariant(sum.State.String())
	out["profile"] = dbus.MakeVariant(sum.Profile)
	out["window_class"] = dbus.MakeVariant(sum.WindowClass)
	out["anchor_x"] = dbus.MakeVariant(sum.Anchor.X)
	out["anchor_y"] = dbus.MakeVariant(sum.Anchor.Y)
	out["highlighted"] = dbus.MakeVariant(int32(sum.Highlighted))
	return out, nil
}

// AcknowledgeSession hides or acknowledges a session. Repeats are no-ops.
func (m *methods) AcknowledgeSession(id uint64) (bool, *dbus.Error) {
	ctrl := m.s.controller()
	if ctrl == nil {
		return false, busError(session.ErrStopped)
	}
	ctx, cancel := m.ctx()
	defer cancel()
	changed, err := ctrl.Acknowledge(ctx, id)
	if err != nil {
		return false, busError(err)
	}
	return changed, nil
}

// GetBattery returns the last battery reading as a{sv}, empty when the
// daemon does not poll the battery.
func (m *methods) GetBattery() (map[string]dbus.Variant, *dbus.Error) {
	out := map[string]dbus.Variant{}
	src := m.s.batterySource()
	if src == nil {
		return out, nil
	}
	st := src.Status()
	out["available"] = dbus.MakeVariant(st.Available)
	out["percent"] = dbus.MakeVariant(st.Percent)
	out["charging"] = dbus.MakeVariant(st.Charging)
	out["error"] = dbus.MakeVariant(st.Error)
	return out, nil
}
