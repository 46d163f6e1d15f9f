package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/device"
	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/haptic"
	"github.com/bnema/radialmx/internal/profile"
)

func TestAngleToSector(t *testing.T) {
	cases := []struct {
		angle float64
		want  int
	}{
		{0, 0}, {10, 0}, {22.49, 0}, {22.5, 1}, {40, 1}, {67.5, 2}, {100, 2},
		{180, 4}, {270, 6}, {337.49, 7}, {337.5, 0}, {359.99, 0},
		{360, 0}, {405, 1}, {-10, 0}, {-30, 7}, {-720, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AngleToSector(c.angle, 100, 35), "angle %v", c.angle)
	}

	t.Run("total over a full turn", func(t *testing.T) {
		counts := make(map[int]int)
		for a := 0.0; a < 360; a += 0.5 {
			idx := AngleToSector(a, 100, 35)
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, 8)
			counts[idx]++
		}
		for i := 0; i < 8; i++ {
			assert.Equal(t, 90, counts[i], "sector %d", i)
		}
	})

	t.Run("symmetric around sector centers", func(t *testing.T) {
		for k := 0; k < 8; k++ {
			center := 45.0 * float64(k)
			assert.Equal(t, k, AngleToSector(center-22.4, 100, 35))
			assert.Equal(t, k, AngleToSector(center+22.4, 100, 35))
		}
	})

	t.Run("center zone and junk", func(t *testing.T) {
		assert.Equal(t, NoSlice, AngleToSector(90, 34.9, 35))
		assert.Equal(t, 2, AngleToSector(90, 35, 35))
		assert.Equal(t, NoSlice, AngleToSector(math.NaN(), 100, 35))
		assert.Equal(t, NoSlice, AngleToSector(math.Inf(1), 100, 35))
	})
}

// gatedCursor blocks until released by the test, or returns at once when
// gate is nil.
type gatedCursor struct {
	gate chan struct{}
	pos  cursor.Position
}

func (g *gatedCursor) Resolve(ctx context.Context) cursor.Result {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
		}
	}
	return cursor.Result{Position: g.pos, Strategy: "fake"}
}

type mapProfiles map[string]profile.Profile

func (m mapProfiles) Resolve(class string) profile.Profile {
	if p, ok := m[class]; ok {
		return p
	}
	return profile.Builtin()
}

type staticFocus string

func (s staticFocus) Class() string { return string(s) }

type signal struct {
	kind    string
	id      uint64
	index   int
	outcome Outcome
	opened  Opened
	result  action.Outcome
}

type recorder struct {
	ch chan signal
}

func newRecorder() *recorder { return &recorder{ch: make(chan signal, 64)} }

func (r *recorder) SessionOpened(ev Opened) {
	r.ch <- signal{kind: "opened", id: ev.ID, opened: ev}
}

func (r *recorder) SliceHighlighted(id uint64, index int) {
	r.ch <- signal{kind: "highlight", id: id, index: index}
}

func (r *recorder) SessionOutcome(id uint64, o Outcome) {
	r.ch <- signal{kind: "outcome", id: id, outcome: o}
}

func (r *recorder) ActionResult(id uint64, res action.Outcome) {
	r.ch <- signal{kind: "action", id: id, result: res}
}

func (r *recorder) next(t *testing.T) signal {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
		return signal{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.ch:
		t.Fatalf("unexpected signal %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
}

type fakeHaptics struct {
	mu     sync.Mutex
	kinds  []haptic.Kind
	slices []int
}

func (f *fakeHaptics) Pulse(k haptic.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, k)
	return true
}

func (f *fakeHaptics) SliceChanged(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slices = append(f.slices, i)
	return true
}

func (f *fakeHaptics) ResetSlices() {}

func (f *fakeHaptics) pulses() []haptic.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]haptic.Kind(nil), f.kinds...)
}

type fakeActions struct {
	mu   sync.Mutex
	ran  []profile.SliceAction
	fail error
}

func (f *fakeActions) Dispatch(ctx context.Context, a profile.SliceAction) action.Outcome {
	f.mu.Lock()
	f.ran = append(f.ran, a)
	f.mu.Unlock()
	return action.Outcome{Kind: a.Kind, Label: a.Label, Err: f.fail}
}

func (f *fakeActions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

type harness struct {
	m       *Machine
	rec     *recorder
	haptics *fakeHaptics
	actions *fakeActions
	cursor  *gatedCursor
	ctx     context.Context
}

func newHarness(t *testing.T, profiles mapProfiles, class string) *harness {
	t.Helper()
	h := &harness{
		rec:     newRecorder(),
		haptics: &fakeHaptics{},
		actions: &fakeActions{},
		cursor:  &gatedCursor{pos: cursor.Position{X: 500, Y: 300, Space: cursor.SpaceLogical}},
	}
	m, err := New(Options{
		Cursor:       h.cursor,
		Profiles:     profiles,
		Focus:        staticFocus(class),
		Haptics:      h.haptics,
		Actions:      h.actions,
		Emitter:      h.rec,
		CenterRadius: 35,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-m.Done()
	})
	go m.Run(ctx)
	h.m = m
	h.ctx = ctx
	return h
}

func (h *harness) press(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.HandleDevice(h.ctx, device.Event{Kind: device.Pressed, Time: time.Now()}))
}

func (h *harness) release(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.HandleDevice(h.ctx, device.Event{Kind: device.Released, Time: time.Now()}))
}

func (h *harness) lose(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.HandleDevice(h.ctx, device.Event{Kind: device.Lost, Err: errors.New("unplugged")}))
}

func TestSessionFiresHighlightedSlice(t *testing.T) {
	h := newHarness(t, nil, "kitty")

	h.press(t)
	opened := h.rec.next(t)
	require.Equal(t, "opened", opened.kind)
	assert.Equal(t, uint64(1), opened.id)
	assert.Equal(t, Anchor{X: 500, Y: 300, Strategy: "fake"}, opened.opened.Anchor)
	assert.Equal(t, profile.DefaultName, opened.opened.Profile.Name)
	assert.Equal(t, "kitty", opened.opened.WindowClass)

	for i, angle := range []float64{10, 40, 100} {
		idx, err := h.m.ReportHover(h.ctx, 1, angle, 120)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
		hl := h.rec.next(t)
		assert.Equal(t, "highlight", hl.kind)
		assert.Equal(t, i, hl.index)
	}

	// same slice again is not re-emitted
	_, err := h.m.ReportHover(h.ctx, 1, 95, 120)
	require.NoError(t, err)

	h.release(t)
	out := h.rec.next(t)
	require.Equal(t, "outcome", out.kind)
	assert.Equal(t, Outcome{Kind: Fired, Slice: 2}, out.outcome)

	res := h.rec.next(t)
	require.Equal(t, "action", res.kind)
	assert.True(t, res.result.OK())
	assert.Equal(t, "Undo", res.result.Label)

	assert.Equal(t, []haptic.Kind{haptic.MenuAppear, haptic.Confirm}, h.haptics.pulses())
	assert.Equal(t, []int{0, 1, 2}, h.haptics.slices)

	active, err := h.m.QueryActiveSession(h.ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDeviceLostCancels(t *testing.T) {
	t.Run("while selecting", func(t *testing.T) {
		h := newHarness(t, nil, "")
		h.press(t)
		require.Equal(t, "opened", h.rec.next(t).kind)
		_, err := h.m.ReportHover(h.ctx, 1, 180, 100)
		require.NoError(t, err)
		require.Equal(t, "highlight", h.rec.next(t).kind)

		h.lose(t)
		out := h.rec.next(t)
		require.Equal(t, "outcome", out.kind)
		assert.Equal(t, Cancelled, out.outcome.Kind)
		assert.Contains(t, out.outcome.Reason, "unplugged")

		h.release(t)
		h.rec.none(t)
		assert.Zero(t, h.actions.count())

		st, err := h.m.QueryStatus(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, "lost", st.Device)
	})

	t.Run("during resolution", func(t *testing.T) {
		h := newHarness(t, nil, "")
		h.cursor.gate = make(chan struct{})
		h.press(t)
		h.lose(t)

		out := h.rec.next(t)
		require.Equal(t, "outcome", out.kind)
		assert.Equal(t, Cancelled, out.outcome.Kind)

		close(h.cursor.gate)
		h.rec.none(t)
		assert.Empty(t, h.haptics.pulses())
	})
}

func TestCenterRelease(t *testing.T) {
	t.Run("without center action", func(t *testing.T) {
		h := newHarness(t, nil, "")
		h.press(t)
		require.Equal(t, "opened", h.rec.next(t).kind)
		h.release(t)
		out := h.rec.next(t)
		assert.Equal(t, Cancelled, out.outcome.Kind)
		h.rec.none(t)
		assert.Equal(t, []haptic.Kind{haptic.MenuAppear, haptic.Invalid}, h.haptics.pulses())
	})

	t.Run("with center action", func(t *testing.T) {
		p := profile.Builtin()
		p.Name = "editor"
		center := profile.Shortcut("Find", "ctrl+f")
		p.Center = &center
		h := newHarness(t, mapProfiles{"code": p}, "code")

		h.press(t)
		require.Equal(t, "opened", h.rec.next(t).kind)
		// back into the center zone after highlighting a slice
		_, err := h.m.ReportHover(h.ctx, 1, 90, 100)
		require.NoError(t, err)
		_, err = h.m.ReportHover(h.ctx, 1, 90, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, h.rec.next(t).index)
		assert.Equal(t, NoSlice, h.rec.next(t).index)

		h.release(t)
		out := h.rec.next(t)
		assert.Equal(t, CenterFired, out.outcome.Kind)
		res := h.rec.next(t)
		assert.Equal(t, "Find", res.result.Label)
	})
}

func TestSingleSession(t *testing.T) {
	h := newHarness(t, nil, "")
	h.press(t)
	require.Equal(t, "opened", h.rec.next(t).kind)

	h.press(t)
	h.press(t)
	h.rec.none(t)

	st, err := h.m.QueryStatus(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Active)
	assert.Equal(t, uint64(1), st.Active.ID)
	assert.Equal(t, Open, st.Active.State)
	assert.Equal(t, uint64(1), st.Sessions)

	h.release(t)
	require.Equal(t, "outcome", h.rec.next(t).kind)

	h.press(t)
	opened := h.rec.next(t)
	assert.Equal(t, uint64(2), opened.id)
}

func TestReleaseWhileArmed(t *testing.T) {
	h := newHarness(t, nil, "")
	h.cursor.gate = make(chan struct{})
	h.press(t)
	h.release(t)

	st, err := h.m.QueryStatus(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Active)
	assert.Equal(t, Armed, st.Active.State)

	close(h.cursor.gate)
	assert.Equal(t, "opened", h.rec.next(t).kind)
	out := h.rec.next(t)
	assert.Equal(t, Cancelled, out.outcome.Kind)
}

func TestHoverRejections(t *testing.T) {
	h := newHarness(t, nil, "")

	_, err := h.m.ReportHover(h.ctx, 1, 10, 100)
	assert.ErrorIs(t, err, ErrNoSession)

	h.cursor.gate = make(chan struct{})
	h.press(t)
	_, err = h.m.ReportHover(h.ctx, 1, 10, 100)
	assert.ErrorIs(t, err, ErrNotOpen)
	close(h.cursor.gate)
	require.Equal(t, "opened", h.rec.next(t).kind)

	_, err = h.m.ReportHover(h.ctx, 7, 10, 100)
	assert.ErrorIs(t, err, ErrStaleSession)
	_, err = h.m.ReportHover(h.ctx, 1, math.NaN(), 100)
	assert.ErrorIs(t, err, ErrInvalidHover)
	_, err = h.m.ReportHover(h.ctx, 1, 10, -1)
	assert.ErrorIs(t, err, ErrInvalidHover)

	idx, err := h.m.ReportHover(h.ctx, 1, 10, 100)
	require.NoError(t, err, "machine still live after bad requests")
	assert.Equal(t, 0, idx)
}

func TestAcknowledge(t *testing.T) {
	t.Run("finished session", func(t *testing.T) {
		h := newHarness(t, nil, "")
		h.press(t)
		require.Equal(t, "opened", h.rec.next(t).kind)
		h.release(t)
		require.Equal(t, "outcome", h.rec.next(t).kind)

		changed, err := h.m.Acknowledge(h.ctx, 1)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = h.m.Acknowledge(h.ctx, 1)
		require.NoError(t, err)
		assert.False(t, changed, "second acknowledge is a no-op")

		_, err = h.m.Acknowledge(h.ctx, 99)
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("evicted session is already acknowledged", func(t *testing.T) {
		rec := newRecorder()
		m, err := New(Options{Cursor: &gatedCursor{}, Profiles: mapProfiles{}, Emitter: rec, RecentLimit: 1})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go m.Run(ctx)

		for i := 0; i < 3; i++ {
			require.NoError(t, m.HandleDevice(ctx, device.Event{Kind: device.Pressed, Time: time.Now()}))
			require.Equal(t, "opened", rec.next(t).kind)
			require.NoError(t, m.HandleDevice(ctx, device.Event{Kind: device.Lost}))
			require.Equal(t, "outcome", rec.next(t).kind)
		}

		changed, err := m.Acknowledge(ctx, 1)
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = m.Acknowledge(ctx, 3)
		require.NoError(t, err)
		assert.True(t, changed)

		_, err = m.Acknowledge(ctx, 4)
		assert.ErrorIs(t, err, ErrUnknownSession)
		_, err = m.Acknowledge(ctx, 0)
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("hides the open session", func(t *testing.T) {
		h := newHarness(t, nil, "")
		h.press(t)
		require.Equal(t, "opened", h.rec.next(t).kind)

		changed, err := h.m.Acknowledge(h.ctx, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		out := h.rec.next(t)
		assert.Equal(t, Outcome{Kind: Cancelled, Reason: "dismissed"}, out.outcome)

		changed, err = h.m.Acknowledge(h.ctx, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		h.rec.none(t)

		h.release(t)
		h.rec.none(t)
	})
}

func TestDispatchFailureStillFired(t *testing.T) {
	h := newHarness(t, nil, "")
	h.actions.fail = errors.New("no virtual keyboard")
	h.press(t)
	require.Equal(t, "opened", h.rec.next(t).kind)
	_, err := h.m.ReportHover(h.ctx, 1, 0, 100)
	require.NoError(t, err)
	require.Equal(t, "highlight", h.rec.next(t).kind)
	h.release(t)

	out := h.rec.next(t)
	assert.Equal(t, Outcome{Kind: Fired, Slice: 0}, out.outcome)
	res := h.rec.next(t)
	assert.False(t, res.result.OK())
	assert.ErrorContains(t, res.result.Err, "virtual keyboard")
}

type fixedLayout struct{ l *display.Layout }

func (f fixedLayout) Layout() *display.Layout { return f.l }

type failing struct{ name string }

func (f failing) Name() string { return f.name }
func (f failing) Resolve(ctx context.Context) (cursor.Position, error) {
	return cursor.Position{}, cursor.ErrUnavailable
}

func TestAllStrategiesFailOpensAtPrimaryCenter(t *testing.T) {
	layout := fixedLayout{display.NewLayout("test", []display.Monitor{
		{ID: "0", Name: "eDP-1", Width: 1280, Height: 800, Scale: 2, Primary: true},
		{ID: "1", Name: "DP-1", X: 1280, Width: 1280, Height: 720, Scale: 2.5},
	})}
	resolver := cursor.NewResolver(layout, 50*time.Millisecond, nil, failing{"a"}, failing{"b"})

	rec := newRecorder()
	m, err := New(Options{Cursor: resolver, Profiles: mapProfiles{}, Emitter: rec})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	start := time.Now()
	require.NoError(t, m.HandleDevice(ctx, device.Event{Kind: device.Pressed, Time: start}))
	opened := rec.next(t)
	require.Equal(t, "opened", opened.kind)
	assert.Equal(t, 640.0, opened.opened.Anchor.X)
	assert.Equal(t, 400.0, opened.opened.Anchor.Y)
	assert.Equal(t, cursor.FallbackName, opened.opened.Anchor.Strategy)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

// deadlineCursor reports the deadline it was given.
type deadlineCursor struct{ seen chan time.Time }

func (d deadlineCursor) Resolve(ctx context.Context) cursor.Result {
	dl, _ := ctx.Deadline()
	d.seen <- dl
	<-ctx.Done()
	return cursor.Result{Position: cursor.Position{X: 1, Y: 1, Space: cursor.SpaceLogical}, Strategy: "fake"}
}

func TestResolveDeadlineFollowsPress(t *testing.T) {
	dc := deadlineCursor{seen: make(chan time.Time, 1)}
	rec := newRecorder()
	m, err := New(Options{Cursor: dc, Profiles: mapProfiles{}, Emitter: rec, ResolveBudget: 100 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// the press sat in a queue for longer than the whole budget
	pressed := time.Now().Add(-time.Second)
	start := time.Now()
	require.NoError(t, m.HandleDevice(ctx, device.Event{Kind: device.Pressed, Time: pressed}))

	select {
	case dl := <-dc.seen:
		assert.True(t, dl.Equal(pressed.Add(100*time.Millisecond)), "deadline %v", dl)
	case <-time.After(time.Second):
		t.Fatal("cursor never resolved")
	}
	require.Equal(t, "opened", rec.next(t).kind)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestShutdownCancelsActive(t *testing.T) {
	rec := newRecorder()
	m, err := New(Options{Cursor: &gatedCursor{}, Profiles: mapProfiles{}, Emitter: rec})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	require.NoError(t, m.HandleDevice(ctx, device.Event{Kind: device.Pressed}))
	require.Equal(t, "opened", rec.next(t).kind)
	cancel()
	<-m.Done()
	out := rec.next(t)
	assert.Equal(t, "shutdown", out.outcome.Reason)

	_, err = m.QueryStatus(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMultiEmitter(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	MultiEmitter{a, b}.SliceHighlighted(3, 4)
	assert.Equal(t, 4, a.next(t).index)
	assert.Equal(t, 4, b.next(t).index)
}
