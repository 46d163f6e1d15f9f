// Package daemon owns every long-lived component of radialmx and wires them
// together: device listener, session machine, resolvers, feedback, actions
// and the renderer, D-Bus and control socket transports.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/battery"
	"github.com/bnema/radialmx/internal/bus"
	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/device"
	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/haptic"
	"github.com/bnema/radialmx/internal/ipc"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/profile"
	"github.com/bnema/radialmx/internal/renderer"
	"github.com/bnema/radialmx/internal/session"
)

// Daemon is the single owner of runtime state.
type Daemon struct {
	cfg *config.Config

	conn     *dbus.Conn
	x11      *cursor.X11Conn
	layout   *display.Cache
	callback *cursor.Callback
	resolver *cursor.Resolver
	profiles *profile.Resolver
	watcher  *profile.Watcher
	focus    *profile.FocusTracker
	haptics  *haptic.Dispatcher
	battery  *battery.Monitor
	keys     action.KeySender
	actions  *action.Dispatcher
	machine  *session.Machine
	listener *device.Listener
	hub      *renderer.Hub
	service  *bus.Service
	socket   *ipc.SocketServer

	mu            sync.Mutex
	started       bool
	stopInput     context.CancelFunc
	stopCore      context.CancelFunc
	stopTransport context.CancelFunc
	inputWG       sync.WaitGroup
	transportWG   sync.WaitGroup
}

// New builds every component from cfg without starting any of them. Only
// configuration that cannot describe a trigger device is fatal.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	sources, err := device.SourcesFromConfig(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("invalid device configuration: %w", err)
	}
	products, err := device.ProductIDs(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("invalid device configuration: %w", err)
	}

	d := &Daemon{cfg: cfg}

	if cfg.DBus.Enabled {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			logger.Warnf("Session bus unavailable, D-Bus features disabled: %v", err)
		} else {
			d.conn = conn
		}
	}

	d.x11 = cursor.NewX11Conn()
	d.layout = display.NewCache(cfg.Display.Backend, time.Duration(cfg.Display.RefreshInterval)*time.Second)
	d.callback = cursor.NewCallback()

	strategies := cursor.Build(cfg.Resolver.Strategies, cursor.Deps{
		Bus:               d.conn,
		Callback:          d.callback,
		CallbackService:   bus.ServiceName,
		CallbackPath:      bus.ObjectPath,
		CallbackInterface: bus.Interface,
		ShellService:      cfg.Resolver.ShellService,
		ShellPath:         dbus.ObjectPath(cfg.Resolver.ShellPath),
		Layout:            d.layout,
		X11:               d.x11,
		SyncPoll:          config.Millis(cfg.Resolver.SyncPollMs),
	})
	timeouts := make(map[string]time.Duration)
	for _, name := range cfg.Resolver.Strategies {
		if t := cfg.Resolver.Timeout(name); t > 0 {
			timeouts[name] = t
		}
	}
	d.resolver = cursor.NewResolver(d.layout, cfg.Resolver.Budget(), timeouts, strategies...)

	d.profiles = profile.NewResolver()
	if table, err := profile.LoadOrCreate(cfg.ProfilesPath()); err != nil {
		d.profiles.ReportError(err)
	} else {
		d.profiles.Swap(table)
	}
	if cfg.Profiles.Watch {
		d.watcher = &profile.Watcher{Path: cfg.ProfilesPath(), Resolver: d.profiles}
	}

	src, err := profile.DetectFocus(ctx, cfg.Profiles.FocusSource, profile.FocusDeps{Bus: d.conn, X11: d.x11})
	if err != nil {
		logger.Warnf("Focus tracking disabled: %v", err)
		src = profile.NoFocus{}
	}
	d.focus = profile.NewFocusTracker(src, config.Millis(cfg.Profiles.FocusPollMs))

	d.haptics = haptic.NewDispatcher(haptic.OptionsFromConfig(cfg.Haptics,
		config.Millis(cfg.Device.ReconnectCooldownMs), haptic.HIDPPOpener(products)))

	if cfg.Battery.Enabled {
		d.battery = &battery.Monitor{
			Interval: time.Duration(cfg.Battery.PollInterval) * time.Second,
			Open:     battery.HIDPPOpener(products),
		}
	}

	if keys, err := action.NewKeySender(cfg.Actions.ShortcutBackend); err != nil {
		logger.Warnf("No shortcut backend, shortcut slices will fail: %v", err)
	} else {
		d.keys = keys
	}
	d.actions = &action.Dispatcher{
		Keys:          d.keys,
		Spawner:       action.ProcessSpawner{},
		RemoteTimeout: config.Millis(cfg.Actions.RemoteCallTimeoutMs),
	}
	if d.conn != nil {
		d.actions.Caller = &action.DBusCaller{Conn: d.conn}
	}

	emitters := session.MultiEmitter{logEmitter{}}
	if cfg.Renderer.Enabled {
		d.hub = renderer.NewHub(renderer.Options{AllowedOrigins: cfg.Renderer.AllowedOrigins})
		emitters = append(emitters, d.hub)
	}
	if d.conn != nil {
		d.service = bus.NewService(d.conn, d.callback)
		emitters = append(emitters, d.service)
	}

	d.machine, err = session.New(session.Options{
		Cursor:        d.resolver,
		Profiles:      d.profiles,
		Focus:         d.focus,
		Haptics:       d.haptics,
		Actions:       d.actions,
		Emitter:       emitters,
		CenterRadius:  cfg.Session.CenterRadius,
		InboxSize:     cfg.Session.InboxSize,
		RecentLimit:   cfg.Session.RecentLimit,
		ResolveBudget: cfg.Resolver.Budget(),
	})
	if err != nil {
		d.closeResources()
		return nil, fmt.Errorf("failed to create session machine: %w", err)
	}
	if d.hub != nil {
		d.hub.Bind(d.machine)
	}
	if d.service != nil {
		d.service.Bind(d.machine)
		if d.battery != nil {
			d.service.BindBattery(d.battery)
			d.battery.OnChange = d.service.BatteryChanged
		}
	}

	d.listener = device.NewListener(device.ListenerOptions{
		Sources:  sources,
		Debounce: config.Millis(cfg.Device.DebounceMs),
		Retry:    config.Millis(cfg.Device.RetryIntervalMs),
		Cooldown: config.Millis(cfg.Device.ReconnectCooldownMs),
		Hotplug:  device.NewHotplugMonitor(),
	})
	d.socket = ipc.NewSocketServer(cfg.SocketPath(), &controlHandler{d: d})

	return d, nil
}

// Start launches every component. Background components start first so the
// machine finds warm caches; the device listener starts last.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	if err := d.socket.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	transportCtx, stopTransport := context.WithCancel(ctx)
	coreCtx, stopCore := context.WithCancel(ctx)
	inputCtx, stopInput := context.WithCancel(ctx)
	d.stopTransport, d.stopCore, d.stopInput = stopTransport, stopCore, stopInput

	d.goTransport(func() { d.layout.Run(transportCtx) })
	d.goTransport(func() { d.focus.Run(transportCtx) })
	d.goTransport(func() { d.haptics.Run(transportCtx) })
	if d.battery != nil {
		d.goTransport(func() { d.battery.Run(transportCtx) })
	}
	if d.watcher != nil {
		d.goTransport(func() {
			if err := d.watcher.Run(transportCtx); err != nil {
				logger.Warnf("Profile watcher stopped: %v", err)
			}
		})
	}
	if d.service != nil {
		if err := d.service.Start(); err != nil {
			logger.Warnf("D-Bus service not registered: %v", err)
		} else {
			d.goTransport(func() { d.service.Run(transportCtx) })
		}
	}
	if d.hub != nil {
		addr := d.cfg.Renderer.ListenAddress
		d.goTransport(func() {
			if err := d.hub.Serve(transportCtx, addr); err != nil {
				logger.Errorf("Renderer endpoint failed: %v", err)
			}
		})
	}

	if w, ok := d.keys.(action.Warmer); ok {
		if err := w.Warm(ctx); err != nil {
			logger.Warnf("Virtual keyboard unavailable, shortcuts use external tools: %v", err)
		}
	}

	go d.machine.Run(coreCtx)

	d.inputWG.Add(2)
	go func() {
		defer d.inputWG.Done()
		if err := d.listener.Run(inputCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Device listener stopped: %v", err)
		}
	}()
	go func() {
		defer d.inputWG.Done()
		for ev := range d.listener.Events() {
			if err := d.machine.HandleDevice(inputCtx, ev); err != nil {
				logger.Debugf("Dropped device event %s: %v", ev.Kind, err)
			}
		}
	}()

	d.started = true
	logger.Infof("radialmx daemon started (socket %s)", d.socket.Path())
	return nil
}

func (d *Daemon) goTransport(fn func()) {
	d.transportWG.Add(1)
	go func() {
		defer d.transportWG.Done()
		fn()
	}()
}

// Stop tears components down in reverse order: input, then the session
// machine (which cancels an open session), then transports and resources.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		d.closeResources()
		return
	}
	d.started = false

	d.stopInput()
	d.inputWG.Wait()

	d.stopCore()
	select {
	case <-d.machine.Done():
	case <-time.After(2 * time.Second):
		logger.Warn("Session machine did not stop in time")
	}

	d.stopTransport()
	d.transportWG.Wait()
	if d.service != nil {
		d.service.Stop()
	}
	d.socket.Stop()
	d.closeResources()
	logger.Info("radialmx daemon stopped")
}

func (d *Daemon) closeResources() {
	if c, ok := d.keys.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Debugf("Closing shortcut backend: %v", err)
		}
	}
	if d.x11 != nil {
		d.x11.Close()
	}
	if d.conn != nil {
		d.conn.Close()
	}
}

// Machine exposes the session machine, mainly for tests.
func (d *Daemon) Machine() *session.Machine {
	return d.machine
}

// controlHandler serves the control socket.
type controlHandler struct {
	d *Daemon
}

func (h *controlHandler) QueryStatus(ctx context.Context) (session.Status, error) {
	return h.d.machine.QueryStatus(ctx)
}

func (h *controlHandler) QueryActiveSession(ctx context.Context) (*session.Summary, error) {
	return h.d.machine.QueryActiveSession(ctx)
}

func (h *controlHandler) ReportHover(ctx context.Context, id uint64, angle, distance float64) (int, error) {
	return h.d.machine.ReportHover(ctx, id, angle, distance)
}

func (h *controlHandler) Acknowledge(ctx context.Context, id uint64) (bool, error) {
	return h.d.machine.Acknowledge(ctx, id)
}

func (h *controlHandler) ReloadProfiles() error {
	return h.d.profiles.Reload(h.d.cfg.ProfilesPath())
}

func (h *controlHandler) Monitors() []display.Monitor {
	return h.d.layout.Layout().Monitors
}

func (h *controlHandler) Battery() *battery.Status {
	if h.d.battery == nil {
		return nil
	}
	st := h.d.battery.Status()
	return &st
}
