package cursor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/radialmx/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLayout struct{ l *display.Layout }

func (f fixedLayout) Layout() *display.Layout { return f.l }

func mixedLayout() fixedLayout {
	return fixedLayout{display.NewLayout("test", []display.Monitor{
		{ID: "0", Name: "eDP-1", X: 0, Y: 0, Width: 1280, Height: 800, Scale: 2, Primary: true},
		{ID: "1", Name: "DP-1", X: 1280, Y: 0, Width: 1280, Height: 720, Scale: 2.5},
	})}
}

// fakeStrategy returns a fixed result after an optional delay, ignoring ctx
// when stubborn is set.
type fakeStrategy struct {
	name     string
	pos      Position
	err      error
	delay    time.Duration
	stubborn bool
	calls    atomic.Int32
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Resolve(ctx context.Context) (Position, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		if f.stubborn {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return Position{}, ctx.Err()
			}
		}
	}
	return f.pos, f.err
}

// physicalFake reports a raw physical reading and converts it like the
// X11 strategies do.
type physicalFake struct {
	layout LayoutSource
	px, py float64
}

func (p physicalFake) Name() string { return "physical" }

func (p physicalFake) Resolve(ctx context.Context) (Position, error) {
	return physicalToLogical(p.layout, p.px, p.py)
}

func TestResolverOrder(t *testing.T) {
	layout := mixedLayout()

	t.Run("first success wins and later strategies are skipped", func(t *testing.T) {
		first := &fakeStrategy{name: "a", err: ErrUnavailable}
		second := &fakeStrategy{name: "b", pos: Position{X: 10, Y: 20, Space: SpaceLogical}}
		third := &fakeStrategy{name: "c", pos: Position{X: 99, Y: 99, Space: SpaceLogical}}

		r := NewResolver(layout, 50*time.Millisecond, nil, first, second, third)
		res := r.Resolve(context.Background())

		assert.Equal(t, "b", res.Strategy)
		assert.Equal(t, 10.0, res.Position.X)
		assert.Equal(t, int32(1), first.calls.Load())
		assert.Equal(t, int32(0), third.calls.Load())
		require.Len(t, res.Attempts, 2)
		assert.ErrorIs(t, res.Attempts[0].Err, ErrUnavailable)
	})

	t.Run("unconfirmed space is rejected", func(t *testing.T) {
		raw := &fakeStrategy{name: "raw", pos: Position{X: 1000, Y: 600, Space: SpacePhysical}}
		ok := &fakeStrategy{name: "ok", pos: Position{X: 1, Y: 2, Space: SpaceLogical}}

		res := NewResolver(layout, 50*time.Millisecond, nil, raw, ok).Resolve(context.Background())
		assert.Equal(t, "ok", res.Strategy)
		assert.Error(t, res.Attempts[0].Err)
	})

	t.Run("static fallback is listed last", func(t *testing.T) {
		r := NewResolver(layout, 0, nil, &fakeStrategy{name: "a"})
		assert.Equal(t, []string{"a", FallbackName}, r.Strategies())
	})
}

func TestResolverMixedScaleSecondStrategy(t *testing.T) {
	layout := mixedLayout()
	// Pointer at logical (500,300) on the 2x primary reads as (1000,600) raw.
	primary := &fakeStrategy{name: "compositor", err: ErrUnavailable}
	second := physicalFake{layout: layout, px: 1000, py: 600}

	res := NewResolver(layout, 50*time.Millisecond, nil, primary, second).Resolve(context.Background())

	assert.Equal(t, "physical", res.Strategy)
	assert.Equal(t, SpaceLogical, res.Position.Space)
	assert.InDelta(t, 500, res.Position.X, 0.001)
	assert.InDelta(t, 300, res.Position.Y, 0.001)
	assert.NotEqual(t, 1000.0, res.Position.X)
}

func TestResolverAllFail(t *testing.T) {
	layout := mixedLayout()
	strategies := []Strategy{
		&fakeStrategy{name: "a", err: ErrUnavailable},
		&fakeStrategy{name: "b", err: errors.New("boom")},
		physicalFake{layout: layout, px: -100, py: -100},
	}

	res := NewResolver(layout, 50*time.Millisecond, nil, strategies...).Resolve(context.Background())

	assert.Equal(t, FallbackName, res.Strategy)
	assert.Equal(t, Position{X: 640, Y: 400, Space: SpaceLogical}, res.Position)
	assert.Len(t, res.Attempts, 3)
}

func TestResolverBudget(t *testing.T) {
	layout := mixedLayout()
	budget := 40 * time.Millisecond

	t.Run("slow strategies cannot exceed the budget", func(t *testing.T) {
		strategies := []Strategy{
			&fakeStrategy{name: "slow1", delay: time.Second, pos: Position{Space: SpaceLogical}},
			&fakeStrategy{name: "slow2", delay: time.Second, pos: Position{Space: SpaceLogical}},
		}
		start := time.Now()
		res := NewResolver(layout, budget, nil, strategies...).Resolve(context.Background())
		elapsed := time.Since(start)

		assert.Equal(t, FallbackName, res.Strategy)
		assert.Less(t, elapsed, budget+15*time.Millisecond)
	})

	t.Run("stubborn strategy is abandoned", func(t *testing.T) {
		stubborn := &fakeStrategy{name: "stubborn", delay: 200 * time.Millisecond, stubborn: true,
			pos: Position{X: 1, Y: 1, Space: SpaceLogical}}
		start := time.Now()
		res := NewResolver(layout, budget, nil, stubborn).Resolve(context.Background())

		assert.Equal(t, FallbackName, res.Strategy)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("per strategy timeout leaves room for the next", func(t *testing.T) {
		slow := &fakeStrategy{name: "slow", delay: time.Second, pos: Position{Space: SpaceLogical}}
		fast := &fakeStrategy{name: "fast", delay: 2 * time.Millisecond, pos: Position{X: 7, Y: 8, Space: SpaceLogical}}
		timeouts := map[string]time.Duration{"slow": 10 * time.Millisecond}

		res := NewResolver(layout, budget, timeouts, slow, fast).Resolve(context.Background())
		assert.Equal(t, "fast", res.Strategy)
		assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
	})

	t.Run("caller deadline shortens the budget", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		slow := &fakeStrategy{name: "slow", delay: time.Second, pos: Position{Space: SpaceLogical}}

		start := time.Now()
		res := NewResolver(layout, time.Second, nil, slow).Resolve(ctx)
		assert.Equal(t, FallbackName, res.Strategy)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})
}

func TestParseXdotoolShell(t *testing.T) {
	x, y, err := parseXdotoolShell("X=1234\nY=567\nSCREEN=0\nWINDOW=8388611\n")
	require.NoError(t, err)
	assert.Equal(t, 1234.0, x)
	assert.Equal(t, 567.0, y)

	_, _, err = parseXdotoolShell("SCREEN=0\n")
	assert.Error(t, err)

	_, _, err = parseXdotoolShell("X=abc\nY=1\n")
	assert.Error(t, err)
}

func TestCallback(t *testing.T) {
	cb := NewCallback()

	t.Run("delivery wakes a registered waiter", func(t *testing.T) {
		ch := cb.register()
		go cb.Deliver(12, 34)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pos, err := cb.wait(ctx, ch)
		require.NoError(t, err)
		assert.Equal(t, Position{X: 12, Y: 34, Space: SpaceLogical}, pos)
	})

	t.Run("delivery without waiters is dropped", func(t *testing.T) {
		cb.Deliver(1, 1)
		ch := cb.register()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := cb.wait(ctx, ch)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestStaticCenter(t *testing.T) {
	pos, err := NewStaticCenter(mixedLayout()).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 640.0, pos.X)
	assert.Equal(t, 400.0, pos.Y)
}

func TestBuildSkipsFallbackAndUnknown(t *testing.T) {
	strategies := Build([]string{"hyprland-ipc", "nope", FallbackName, "xdotool"}, Deps{Layout: mixedLayout()})
	require.Len(t, strategies, 2)
	assert.Equal(t, "hyprland-ipc", strategies[0].Name())
	assert.Equal(t, "xdotool", strategies[1].Name())
}
