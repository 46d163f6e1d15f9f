package device

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/radialmx/internal/config"
)

func TestDebouncer(t *testing.T) {
	base := time.Unix(1000, 0)
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	t.Run("clean click", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		kind, v := d.Feed(RawButton{Pressed: true, Time: at(0)})
		assert.Equal(t, Pressed, kind)
		assert.Equal(t, Emit, v)
		kind, v = d.Feed(RawButton{Pressed: false, Time: at(100)})
		assert.Equal(t, Released, kind)
		assert.Equal(t, Emit, v)
		assert.False(t, d.Pressed())
	})

	t.Run("bounce merged into one press", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		_, v := d.Feed(RawButton{Pressed: true, Time: at(0)})
		require.Equal(t, Emit, v)
		_, v = d.Feed(RawButton{Pressed: false, Time: at(3)})
		assert.Equal(t, Held, v)
		_, v = d.Feed(RawButton{Pressed: true, Time: at(5)})
		assert.Equal(t, Merged, v)
		assert.True(t, d.Pressed())
		_, ok := d.Due()
		assert.False(t, ok)
	})

	t.Run("held release flushed after window", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		d.Feed(RawButton{Pressed: true, Time: at(0)})
		d.Feed(RawButton{Pressed: false, Time: at(4)})

		due, ok := d.Due()
		require.True(t, ok)
		assert.Equal(t, at(15), due)

		_, flushed := d.Flush(at(10))
		assert.False(t, flushed)

		when, flushed := d.Flush(at(16))
		require.True(t, flushed)
		assert.Equal(t, at(4), when)
		assert.False(t, d.Pressed())
	})

	t.Run("double press is out of order", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		d.Feed(RawButton{Pressed: true, Time: at(0)})
		_, v := d.Feed(RawButton{Pressed: true, Time: at(200)})
		assert.Equal(t, OutOfOrder, v)
	})

	t.Run("release without press is out of order", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		_, v := d.Feed(RawButton{Pressed: false, Time: at(0)})
		assert.Equal(t, OutOfOrder, v)
	})

	t.Run("press right after release merged", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		d.Feed(RawButton{Pressed: true, Time: at(0)})
		d.Feed(RawButton{Pressed: false, Time: at(50)})
		_, v := d.Feed(RawButton{Pressed: true, Time: at(55)})
		assert.Equal(t, Merged, v)
		_, v = d.Feed(RawButton{Pressed: true, Time: at(80)})
		assert.Equal(t, Emit, v)
	})

	t.Run("press after the hold expired keeps the release", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		_, v := d.Feed(RawButton{Pressed: true, Time: at(0)})
		require.Equal(t, Emit, v)
		_, v = d.Feed(RawButton{Pressed: false, Time: at(10)})
		require.Equal(t, Held, v)

		when, flushed := d.Flush(at(40))
		require.True(t, flushed)
		assert.Equal(t, at(10), when)

		kind, v := d.Feed(RawButton{Pressed: true, Time: at(40)})
		assert.Equal(t, Pressed, kind)
		assert.Equal(t, Emit, v)
		assert.True(t, d.Pressed())
	})

	t.Run("late press is not merged into a stale hold", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		d.Feed(RawButton{Pressed: true, Time: at(0)})
		d.Feed(RawButton{Pressed: false, Time: at(10)})
		_, v := d.Feed(RawButton{Pressed: true, Time: at(40)})
		assert.NotEqual(t, Merged, v)
	})

	t.Run("reset forgets state", func(t *testing.T) {
		d := Debouncer{Window: 15 * time.Millisecond}
		d.Feed(RawButton{Pressed: true, Time: at(0)})
		d.Reset()
		assert.False(t, d.Pressed())
		assert.Equal(t, 15*time.Millisecond, d.Window)
	})
}

// fakeReader replays raw transitions pushed by the test.
type fakeReader struct {
	raws   chan RawButton
	fail   chan error
	once   sync.Once
	closed chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		raws:   make(chan RawButton, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (r *fakeReader) Read() (RawButton, error) {
	select {
	case b := <-r.raws:
		return b, nil
	case err := <-r.fail:
		return RawButton{}, err
	case <-r.closed:
		return RawButton{}, errors.New("closed")
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) Describe() string { return "fake mouse" }

// fakeSource hands out queued readers, failing while none are queued.
type fakeSource struct {
	mu      sync.Mutex
	readers []*fakeReader
	opens   int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Open(ctx context.Context) (Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if len(s.readers) == 0 {
		return nil, ErrNoDevice
	}
	r := s.readers[0]
	s.readers = s.readers[1:]
	return r, nil
}

func (s *fakeSource) push(r *fakeReader) {
	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.mu.Unlock()
}

func nextEvent(t *testing.T, l *Listener) Event {
	t.Helper()
	select {
	case ev, ok := <-l.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener event")
		return Event{}
	}
}

func TestListener(t *testing.T) {
	t.Run("press release and loss", func(t *testing.T) {
		r := newFakeReader()
		src := &fakeSource{}
		src.push(r)

		l := NewListener(ListenerOptions{Sources: []Source{src}, Debounce: 15 * time.Millisecond, Retry: 20 * time.Millisecond})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go l.Run(ctx)

		now := time.Now()
		r.raws <- RawButton{Pressed: true, Time: now}
		ev := nextEvent(t, l)
		assert.Equal(t, Pressed, ev.Kind)
		assert.Equal(t, "fake mouse", ev.Device)

		r.raws <- RawButton{Pressed: false, Time: now.Add(100 * time.Millisecond)}
		assert.Equal(t, Released, nextEvent(t, l).Kind)

		r.fail <- errors.New("no such device")
		ev = nextEvent(t, l)
		assert.Equal(t, Lost, ev.Kind)
		assert.ErrorContains(t, ev.Err, "no such device")

		assert.Equal(t, Degraded, nextEvent(t, l).Kind)

		src.push(newFakeReader())
		ev = nextEvent(t, l)
		assert.Equal(t, Recovered, ev.Kind)
		assert.Equal(t, "fake mouse", ev.Device)
	})

	t.Run("quick click release is flushed", func(t *testing.T) {
		r := newFakeReader()
		src := &fakeSource{}
		src.push(r)

		l := NewListener(ListenerOptions{Sources: []Source{src}, Debounce: 30 * time.Millisecond})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go l.Run(ctx)

		now := time.Now()
		r.raws <- RawButton{Pressed: true, Time: now}
		r.raws <- RawButton{Pressed: false, Time: now.Add(5 * time.Millisecond)}
		assert.Equal(t, Pressed, nextEvent(t, l).Kind)
		ev := nextEvent(t, l)
		assert.Equal(t, Released, ev.Kind)
		assert.Equal(t, now.Add(5*time.Millisecond), ev.Time)
	})

	t.Run("click then press keeps both transitions", func(t *testing.T) {
		r := newFakeReader()
		src := &fakeSource{}
		src.push(r)

		l := NewListener(ListenerOptions{Sources: []Source{src}, Debounce: 15 * time.Millisecond})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		now := time.Now()
		r.raws <- RawButton{Pressed: true, Time: now}
		r.raws <- RawButton{Pressed: false, Time: now.Add(10 * time.Millisecond)}
		r.raws <- RawButton{Pressed: true, Time: now.Add(40 * time.Millisecond)}
		go l.Run(ctx)

		assert.Equal(t, Pressed, nextEvent(t, l).Kind)
		ev := nextEvent(t, l)
		assert.Equal(t, Released, ev.Kind)
		assert.Equal(t, now.Add(10*time.Millisecond), ev.Time)
		ev = nextEvent(t, l)
		assert.Equal(t, Pressed, ev.Kind)
		assert.Equal(t, now.Add(40*time.Millisecond), ev.Time)
	})

	t.Run("degraded only once while retrying", func(t *testing.T) {
		src := &fakeSource{}
		l := NewListener(ListenerOptions{Sources: []Source{src}, Retry: 5 * time.Millisecond})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			l.Run(ctx)
			close(done)
		}()

		assert.Equal(t, Degraded, nextEvent(t, l).Kind)
		time.Sleep(50 * time.Millisecond)
		cancel()
		<-done

		_, open := <-l.Events()
		assert.False(t, open, "no further degraded events")
		src.mu.Lock()
		assert.Greater(t, src.opens, 2)
		src.mu.Unlock()
	})

	t.Run("no sources", func(t *testing.T) {
		l := NewListener(ListenerOptions{})
		assert.Error(t, l.Run(context.Background()))
	})
}

func TestSourcesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig.Device

	sources, err := SourcesFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "hidpp", sources[0].Name())
	ev := sources[1].(*EvdevSource)
	assert.Equal(t, uint16(0x046D), ev.Vendor)
	assert.Equal(t, []uint16{0xB034, 0xC548, 0xC52B}, ev.Products)
	assert.Equal(t, uint16(evdev.KEY_F19), ev.Code)

	cfg.Source = "hidpp"
	sources, err = SourcesFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, uint16(0xC3), sources[0].(*HIDPPSource).CID)

	cfg.Source = "bluetooth"
	_, err = SourcesFromConfig(cfg)
	assert.Error(t, err)

	cfg.Source = "auto"
	cfg.TriggerKey = "KEY_NOPE"
	_, err = SourcesFromConfig(cfg)
	assert.Error(t, err)

	cfg.TriggerKey = "KEY_F19"
	cfg.VendorID = "zz"
	_, err = SourcesFromConfig(cfg)
	assert.Error(t, err)
}

func TestHotplugSnapshot(t *testing.T) {
	dir := t.TempDir()
	m := &HotplugMonitor{Dirs: []string{dir}, Prefixes: []string{"event"}}
	require.NoError(t, writeEmpty(dir+"/event3"))
	require.NoError(t, writeEmpty(dir+"/mouse0"))

	nodes := m.snapshot()
	assert.Equal(t, map[string]bool{dir + "/event3": true}, nodes)
}

func writeEmpty(path string) error {
	return os.WriteFile(path, nil, 0o600)
}
