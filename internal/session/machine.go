package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/device"
	"github.com/bnema/radialmx/internal/haptic"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/profile"
)

// CursorResolver finds the anchor. It must return within its own budget.
type CursorResolver interface {
	Resolve(ctx context.Context) cursor.Result
}

// ProfileResolver is a pure in-memory lookup.
type ProfileResolver interface {
	Resolve(class string) profile.Profile
}

// FocusCache returns the last known focused window class without I/O.
type FocusCache interface {
	Class() string
}

// Haptics is the non-blocking pulse sink.
type Haptics interface {
	Pulse(kind haptic.Kind) bool
	SliceChanged(index int) bool
	ResetSlices()
}

// Actions runs the selected action.
type Actions interface {
	Dispatch(ctx context.Context, a profile.SliceAction) action.Outcome
}

// Options wires a Machine. Cursor and Profiles are required.
type Options struct {
	Cursor       CursorResolver
	Profiles     ProfileResolver
	Focus        FocusCache
	Haptics      Haptics
	Actions      Actions
	Emitter      Emitter
	CenterRadius float64
	InboxSize    int
	RecentLimit  int

	// ResolveBudget bounds cursor resolution from the press time. Zero
	// leaves the bound to the resolver.
	ResolveBudget time.Duration
}

// active is the single live session, owned by the run loop.
type active struct {
	id             uint64
	state          State
	profile        profile.Profile
	class          string
	anchor         Anchor
	highlighted    int
	startedAt      time.Time
	openedAt       time.Time
	pendingRelease bool
	cancel         context.CancelFunc
}

// Machine is the session state machine. Press, release and device loss come
// from the listener; hover, query and acknowledge come from renderers and
// the control socket. Every input is serialized through the inbox.
type Machine struct {
	opts  Options
	inbox chan any
	done  chan struct{}
	log   *log.Logger

	// owned by Run
	ctx      context.Context
	cur      *active
	nextID   uint64
	device   string
	recent   *lru.Cache[uint64, *Finished]
	last     *Finished
	sessions uint64

	// highest id ever finished; evicted ids at or below it were acknowledged
	maxFinished uint64
}

type pressMsg struct{ at time.Time }
type releaseMsg struct{ at time.Time }
type lostMsg struct{ err error }
type deviceStatusMsg struct{ status string }

type resolvedMsg struct {
	id  uint64
	res cursor.Result
}

type hoverMsg struct {
	id       uint64
	angle    float64
	distance float64
	reply    chan hoverReply
}

type hoverReply struct {
	index int
	err   error
}

type queryMsg struct{ reply chan Status }

type ackMsg struct {
	id    uint64
	reply chan ackReply
}

type ackReply struct {
	changed bool
	err     error
}

// New creates a machine. Call Run to start it.
func New(opts Options) (*Machine, error) {
	if opts.Cursor == nil || opts.Profiles == nil {
		return nil, fmt.Errorf("session: cursor and profile resolvers are required")
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 32
	}
	if opts.CenterRadius < 0 {
		opts.CenterRadius = 0
	}
	if opts.Emitter == nil {
		opts.Emitter = MultiEmitter(nil)
	}
	recent, err := lru.New[uint64, *Finished](opts.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Machine{
		opts:   opts,
		inbox:  make(chan any, opts.InboxSize),
		done:   make(chan struct{}),
		log:    logger.With("component", "session"),
		recent: recent,
		device: "unknown",
	}, nil
}

// Run processes inputs until ctx is done. An active session is cancelled
// on shutdown.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.done)
	m.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			if m.cur != nil {
				m.finish(Outcome{Kind: Cancelled, Reason: "shutdown"}, false)
			}
			return
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Machine) handle(msg any) {
	switch msg := msg.(type) {
	case pressMsg:
		m.onPress(msg.at)
	case releaseMsg:
		m.onRelease()
	case lostMsg:
		m.device = "lost"
		m.onLost(msg.err)
	case deviceStatusMsg:
		m.device = msg.status
	case resolvedMsg:
		m.onResolved(msg.id, msg.res)
	case hoverMsg:
		idx, err := m.onHover(msg.id, msg.angle, msg.distance)
		msg.reply <- hoverReply{index: idx, err: err}
	case queryMsg:
		msg.reply <- m.status()
	case ackMsg:
		changed, err := m.onAck(msg.id)
		msg.reply <- ackReply{changed: changed, err: err}
	default:
		m.log.Warn("unexpected inbox message", "type", fmt.Sprintf("%T", msg))
	}
}

func (m *Machine) onPress(at time.Time) {
	if m.cur != nil {
		m.log.Warn("press ignored, session still active", "session", m.cur.id, "state", m.cur.state)
		return
	}
	m.nextID++
	m.sessions++
	m.device = "ok"

	class := ""
	if m.opts.Focus != nil {
		class = m.opts.Focus.Class()
	}
	prof := m.opts.Profiles.Resolve(class)

	rctx, cancel := context.WithCancel(m.ctx)
	s := &active{
		id:          m.nextID,
		state:       Armed,
		profile:     prof,
		class:       class,
		highlighted: NoSlice,
		startedAt:   at,
		cancel:      cancel,
	}
	m.cur = s
	m.log.Debug("armed", "session", s.id, "class", class, "profile", prof.Name)

	go m.resolve(rctx, at, s.id)
}

// resolve runs off the loop; its result is dropped if the session is gone.
// The deadline counts from the press, so time spent waiting in the inbox
// comes out of the budget. An expired deadline still yields the fallback.
func (m *Machine) resolve(ctx context.Context, at time.Time, id uint64) {
	rctx := ctx
	if m.opts.ResolveBudget > 0 && !at.IsZero() {
		var cancel context.CancelFunc
		rctx, cancel = context.WithDeadline(ctx, at.Add(m.opts.ResolveBudget))
		defer cancel()
	}
	res := m.opts.Cursor.Resolve(rctx)
	select {
	case m.inbox <- resolvedMsg{id: id, res: res}:
	case <-ctx.Done():
	case <-m.done:
	}
}

func (m *Machine) onResolved(id uint64, res cursor.Result) {
	s := m.cur
	if s == nil || s.id != id || s.state != Armed {
		m.log.Debug("late resolution discarded", "session", id)
		return
	}
	s.cancel()
	s.state = Open
	s.openedAt = time.Now()
	s.anchor = Anchor{X: res.Position.X, Y: res.Position.Y, Strategy: res.Strategy}

	m.log.Info("menu opened", "session", id, "x", res.Position.X, "y", res.Position.Y,
		"strategy", res.Strategy, "resolve", res.Elapsed, "profile", s.profile.Name)

	m.opts.Emitter.SessionOpened(Opened{
		ID:          id,
		Anchor:      s.anchor,
		Profile:     s.profile,
		WindowClass: s.class,
		Resolve:     res.Elapsed,
	})
	if m.opts.Haptics != nil {
		m.opts.Haptics.ResetSlices()
		m.opts.Haptics.Pulse(haptic.MenuAppear)
	}

	if s.pendingRelease {
		m.onRelease()
	}
}

func (m *Machine) onRelease() {
	s := m.cur
	if s == nil {
		m.log.Debug("release without session")
		return
	}
	if s.state == Armed {
		s.pendingRelease = true
		return
	}
	if s.highlighted == NoSlice {
		if s.profile.Center != nil {
			m.finish(Outcome{Kind: CenterFired, Slice: NoSlice}, true)
		} else {
			m.finish(Outcome{Kind: Cancelled, Reason: "released in center"}, true)
		}
		return
	}
	m.finish(Outcome{Kind: Fired, Slice: s.highlighted}, true)
}

func (m *Machine) onLost(err error) {
	if m.cur == nil {
		return
	}
	reason := "device lost"
	if err != nil {
		reason = "device lost: " + err.Error()
	}
	m.finish(Outcome{Kind: Cancelled, Reason: reason}, false)
}

func (m *Machine) onHover(id uint64, angle, distance float64) (int, error) {
	if math.IsNaN(angle) || math.IsInf(angle, 0) || math.IsNaN(distance) || math.IsInf(distance, 0) || distance < 0 {
		return NoSlice, ErrInvalidHover
	}
	s := m.cur
	if s == nil {
		return NoSlice, ErrNoSession
	}
	if s.id != id {
		return NoSlice, ErrStaleSession
	}
	if s.state == Armed {
		return NoSlice, ErrNotOpen
	}

	idx := AngleToSector(angle, distance, m.opts.CenterRadius)
	s.state = Selecting
	if idx != s.highlighted {
		s.highlighted = idx
		m.opts.Emitter.SliceHighlighted(id, idx)
		if idx != NoSlice && m.opts.Haptics != nil {
			m.opts.Haptics.SliceChanged(idx)
		}
	}
	return idx, nil
}

// onAck hides the active session or marks a finished one acknowledged.
// Repeating it for the same id changes nothing.
func (m *Machine) onAck(id uint64) (bool, error) {
	if s := m.cur; s != nil && s.id == id {
		m.finish(Outcome{Kind: Cancelled, Reason: "dismissed"}, s.state != Armed)
		f, _ := m.recent.Get(id)
		f.Acknowledged = true
		return true, nil
	}
	f, ok := m.recent.Get(id)
	if !ok {
		if id != 0 && id <= m.maxFinished {
			return false, nil
		}
		return false, ErrUnknownSession
	}
	if f.Acknowledged {
		return false, nil
	}
	f.Acknowledged = true
	return true, nil
}

// finish ends the active session with exactly one outcome signal.
func (m *Machine) finish(o Outcome, feedback bool) {
	s := m.cur
	m.cur = nil
	s.cancel()

	f := &Finished{ID: s.id, Outcome: o, EndedAt: time.Now()}
	m.recent.Add(s.id, f)
	m.last = f
	if s.id > m.maxFinished {
		m.maxFinished = s.id
	}

	m.log.Info("session ended", "session", s.id, "outcome", o.String(), "held", time.Since(s.startedAt).Round(time.Millisecond))
	m.opts.Emitter.SessionOutcome(s.id, o)

	if feedback && m.opts.Haptics != nil {
		if o.Kind == Cancelled {
			m.opts.Haptics.Pulse(haptic.Invalid)
		} else {
			m.opts.Haptics.Pulse(haptic.Confirm)
		}
	}

	var act profile.SliceAction
	switch o.Kind {
	case Fired:
		act = s.profile.Slice(o.Slice)
	case CenterFired:
		act = *s.profile.Center
	default:
		return
	}
	if m.opts.Actions == nil {
		m.opts.Emitter.ActionResult(s.id, action.Outcome{Kind: act.Kind, Label: act.Label, Err: action.ErrNoBackend})
		return
	}
	go func(id uint64) {
		res := m.opts.Actions.Dispatch(m.ctx, act)
		m.opts.Emitter.ActionResult(id, res)
	}(s.id)
}

func (m *Machine) status() Status {
	st := Status{Device: m.device, Sessions: m.sessions}
	if s := m.cur; s != nil {
		st.Active = &Summary{
			ID:          s.id,
			State:       s.state,
			Profile:     s.profile.Name,
			WindowClass: s.class,
			Anchor:      s.anchor,
			Highlighted: s.highlighted,
			StartedAt:   s.startedAt,
			OpenedAt:    s.openedAt,
		}
	}
	if m.last != nil {
		last := *m.last
		st.Last = &last
	}
	return st
}

func (m *Machine) post(ctx context.Context, msg any) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// HandleDevice feeds a listener event into the machine.
func (m *Machine) HandleDevice(ctx context.Context, ev device.Event) error {
	switch ev.Kind {
	case device.Pressed:
		return m.post(ctx, pressMsg{at: ev.Time})
	case device.Released:
		return m.post(ctx, releaseMsg{at: ev.Time})
	case device.Lost:
		return m.post(ctx, lostMsg{err: ev.Err})
	case device.Degraded:
		return m.post(ctx, deviceStatusMsg{status: "degraded"})
	case device.Recovered:
		return m.post(ctx, deviceStatusMsg{status: "ok"})
	}
	return nil
}

// ReportHover updates the highlighted slice and returns it.
func (m *Machine) ReportHover(ctx context.Context, id uint64, angle, distance float64) (int, error) {
	reply := make(chan hoverReply, 1)
	if err := m.post(ctx, hoverMsg{id: id, angle: angle, distance: distance, reply: reply}); err != nil {
		return NoSlice, err
	}
	select {
	case r := <-reply:
		return r.index, r.err
	case <-ctx.Done():
		return NoSlice, ctx.Err()
	case <-m.done:
		return NoSlice, ErrStopped
	}
}

// QueryStatus returns the machine status, including the active session.
func (m *Machine) QueryStatus(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := m.post(ctx, queryMsg{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-m.done:
		return Status{}, ErrStopped
	}
}

// QueryActiveSession returns the active session summary, if any.
func (m *Machine) QueryActiveSession(ctx context.Context) (*Summary, error) {
	st, err := m.QueryStatus(ctx)
	if err != nil {
		return nil, err
	}
	return st.Active, nil
}

// Acknowledge hides a session. It reports whether anything changed.
func (m *Machine) Acknowledge(ctx context.Context, id uint64) (bool, error) {
	reply := make(chan ackReply, 1)
	if err := m.post(ctx, ackMsg{id: id, reply: reply}); err != nil {
		return false, err
	}
	select {
	case r := <-reply:
		return r.changed, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-m.done:
		return false, ErrStopped
	}
}

// Done is closed when Run returns.
func (m *Machine) Done() <-chan struct{} { return m.done }
