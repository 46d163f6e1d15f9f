package haptic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/radialmx/internal/config"
)

type pulse struct {
	intensity uint8
	duration  time.Duration
}

type fakeDevice struct {
	mu     sync.Mutex
	pulses []pulse
	fail   error
	closed bool
}

func (f *fakeDevice) Haptic(ctx context.Context, intensity uint8, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.pulses = append(f.pulses, pulse{intensity, duration})
	return nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulses)
}

func (f *fakeDevice) snapshot() []pulse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pulse(nil), f.pulses...)
}

func TestPatterns(t *testing.T) {
	dev := &fakeDevice{}
	d := NewDispatcher(Options{Enabled: true, Scale: 50, Open: func(context.Context) (Device, error) { return dev, nil }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.True(t, d.Pulse(Confirm))
	require.Eventually(t, func() bool { return dev.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []pulse{{40, 25 * time.Millisecond}, {40, 25 * time.Millisecond}}, dev.snapshot())

	require.True(t, d.Pulse(Invalid))
	require.Eventually(t, func() bool { return dev.count() == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, pulse{15, 50 * time.Millisecond}, dev.snapshot()[4])
}

func TestPulseGuards(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		d := NewDispatcher(Options{Enabled: false, Scale: 100})
		assert.False(t, d.Pulse(MenuAppear))
		assert.False(t, d.SliceChanged(2))
	})

	t.Run("zero scale", func(t *testing.T) {
		d := NewDispatcher(Options{Enabled: true, Scale: 0})
		assert.False(t, d.Pulse(MenuAppear))
	})

	t.Run("queue full drops", func(t *testing.T) {
		d := NewDispatcher(Options{Enabled: true, Scale: 100, QueueSize: 2})
		assert.True(t, d.Pulse(MenuAppear))
		assert.True(t, d.Pulse(MenuAppear))
		assert.False(t, d.Pulse(MenuAppear))
	})
}

func TestSliceDebounce(t *testing.T) {
	d := NewDispatcher(Options{
		Enabled:       true,
		Scale:         100,
		SliceDebounce: 20 * time.Millisecond,
		Reentry:       50 * time.Millisecond,
		QueueSize:     16,
	})
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }
	step := func(ms int) { now = now.Add(time.Duration(ms) * time.Millisecond) }

	assert.True(t, d.SliceChanged(0))
	step(5)
	assert.False(t, d.SliceChanged(1), "fast sweep")
	step(5)
	assert.False(t, d.SliceChanged(2), "fast sweep")
	step(15)
	assert.True(t, d.SliceChanged(3))
	step(30)
	assert.False(t, d.SliceChanged(3), "re-entry of the same slice")
	step(30)
	assert.True(t, d.SliceChanged(3))

	d.ResetSlices()
	assert.True(t, d.SliceChanged(3))
}

func TestDeviceFailureCooldown(t *testing.T) {
	dev := &fakeDevice{fail: errors.New("broken pipe")}
	opens := 0
	d := NewDispatcher(Options{
		Enabled:  true,
		Scale:    100,
		Cooldown: time.Hour,
		Open: func(context.Context) (Device, error) {
			opens++
			return dev, nil
		},
	})

	ctx := context.Background()
	d.play(ctx, DefaultPatterns()[Confirm])
	assert.True(t, dev.closed)
	assert.Nil(t, d.dev)

	d.play(ctx, DefaultPatterns()[Confirm])
	assert.Equal(t, 1, opens, "no reopen during cooldown")

	d.failedAt = time.Now().Add(-2 * time.Hour)
	dev.fail = nil
	d.play(ctx, DefaultPatterns()[MenuAppear])
	assert.Equal(t, 2, opens)
	assert.Equal(t, 1, dev.count())
}

func TestOpenFailureIsSilent(t *testing.T) {
	d := NewDispatcher(Options{
		Enabled: true,
		Scale:   100,
		Open:    func(context.Context) (Device, error) { return nil, errors.New("no device") },
	})
	d.play(context.Background(), DefaultPatterns()[MenuAppear])
	assert.False(t, d.failedAt.IsZero())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig.Haptics
	cfg.Confirm = 150
	opts := OptionsFromConfig(cfg, 5*time.Second, nil)
	assert.Equal(t, uint8(100), opts.Patterns[Confirm].Intensity)
	assert.Equal(t, 2, opts.Patterns[Confirm].Count)
	assert.Equal(t, uint8(20), opts.Patterns[MenuAppear].Intensity)
	assert.Equal(t, 20*time.Millisecond, opts.SliceDebounce)
	assert.Equal(t, 50*time.Millisecond, opts.Reentry)
	assert.Equal(t, "slice_change", SliceChange.String())
}
