package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/spf13/cobra"
	"github.com/syndtr/gocapability/capability"
	"golang.org/x/sys/unix"

	"github.com/bnema/radialmx/internal/bus"
	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/device"
	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/hidpp"
	"github.com/bnema/radialmx/internal/keys"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment radialmx runs in",
	Long: `Check permissions, trigger devices, cursor strategies and the session bus,
and report what the daemon will be able to use.`,
	RunE: runDoctor,
}

type check struct {
	level  ui.CheckLevel
	label  string
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, ui.FormatHeader("RADIALMX DOCTOR", config.GetConfigPath()))

	section(out, "Permissions", []check{
		checkCapabilities(),
		checkWritable("uinput", "/dev/uinput", "uinput shortcuts unavailable, use xdotool or ydotool"),
	})
	section(out, "Trigger device", checkDevices(cfg))
	section(out, "Cursor strategies", checkStrategies(cmd.Context(), cfg))
	section(out, "Session bus", []check{checkBus()})
	return nil
}

func section(out io.Writer, title string, checks []check) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.SubheaderStyle.Render(title))
	for _, c := range checks {
		fmt.Fprintln(out, ui.FormatCheck(c.level, c.label, c.detail))
	}
}

func checkCapabilities() check {
	if os.Geteuid() == 0 {
		return check{ui.CheckWarn, "privileges", "running as root, the daemon should run as your user"}
	}
	caps, err := capability.NewPid2(0)
	if err != nil {
		return check{ui.CheckWarn, "privileges", fmt.Sprintf("cannot read capabilities: %v", err)}
	}
	if err := caps.Load(); err != nil {
		return check{ui.CheckWarn, "privileges", fmt.Sprintf("cannot load capabilities: %v", err)}
	}
	if caps.Get(capability.EFFECTIVE, capability.CAP_DAC_OVERRIDE) {
		return check{ui.CheckWarn, "privileges", "CAP_DAC_OVERRIDE is effective, device permissions are bypassed"}
	}
	return check{ui.CheckOK, "privileges", "unprivileged user"}
}

func checkWritable(label, path, hint string) check {
	if _, err := os.Stat(path); err != nil {
		return check{ui.CheckFail, label, fmt.Sprintf("%s missing: %s", path, hint)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return check{ui.CheckFail, label, fmt.Sprintf("%s not writable (%v): %s", path, err, hint)}
	}
	return check{ui.CheckOK, label, path + " writable"}
}

func checkDevices(cfg *config.Config) []check {
	var checks []check

	products, err := device.ProductIDs(cfg.Device)
	if err != nil {
		return []check{{ui.CheckFail, "config", err.Error()}}
	}

	if cfg.Device.Source != "evdev" {
		candidates, err := hidpp.Find(products)
		switch {
		case err != nil:
			checks = append(checks, check{ui.CheckWarn, "hidpp", err.Error()})
		case len(candidates) == 0:
			checks = append(checks, check{ui.CheckWarn, "hidpp", "no Logitech HID++ interface found"})
		}
		for _, c := range candidates {
			name := fmt.Sprintf("%s (%s, %04x)", c.Product, c.Conn, c.ProductID)
			if err := unix.Access(c.Path, unix.R_OK|unix.W_OK); err != nil {
				checks = append(checks, check{ui.CheckFail, "hidpp", fmt.Sprintf("%s at %s not accessible: %v", name, c.Path, err)})
				continue
			}
			checks = append(checks, check{ui.CheckOK, "hidpp", name + " at " + c.Path})
		}
	}

	if cfg.Device.Source != "hidpp" {
		checks = append(checks, checkEvdev(cfg.Device, "/dev/input/event*")...)
	}
	return checks
}

func checkEvdev(cfg config.DeviceConfig, glob string) []check {
	code, ok := keys.Code(cfg.TriggerKey)
	if !ok {
		return []check{{ui.CheckFail, "evdev", fmt.Sprintf("unknown trigger key %q", cfg.TriggerKey)}}
	}

	paths, _ := filepath.Glob(glob)
	devices, err := evdev.ListInputDevices(glob)
	if err != nil {
		return []check{{ui.CheckFail, "evdev", err.Error()}}
	}
	defer func() {
		for _, dev := range devices {
			dev.File.Close()
		}
	}()

	checks := []check{}
	if len(devices) < len(paths) {
		checks = append(checks, check{ui.CheckWarn, "evdev",
			fmt.Sprintf("%d of %d input devices readable, join the input group to see all", len(devices), len(paths))})
	}

	found := 0
	for _, dev := range devices {
		if reportsKey(dev, code) {
			found++
			checks = append(checks, check{ui.CheckOK, "evdev", fmt.Sprintf("%s reports %s (%s)", dev.Name, cfg.TriggerKey, dev.Fn)})
		}
	}
	if found == 0 {
		checks = append(checks, check{ui.CheckFail, "evdev",
			fmt.Sprintf("no readable device reports %s, divert the gesture button to it first", cfg.TriggerKey)})
	}
	return checks
}

func checkStrategies(ctx context.Context, cfg *config.Config) []check {
	conn, err := dbus.ConnectSessionBus()
	if err == nil {
		defer conn.Close()
	}
	x11 := cursor.NewX11Conn()
	defer x11.Close()

	layout := display.NewCache(cfg.Display.Backend, 0)
	if err := layout.Refresh(ctx); err != nil {
		logger.Debugf("Probing strategies against the default layout: %v", err)
	}

	strategies := cursor.Build(cfg.Resolver.Strategies, cursor.Deps{
		Bus:               conn,
		CallbackService:   bus.ServiceName,
		CallbackPath:      bus.ObjectPath,
		CallbackInterface: bus.Interface,
		ShellService:      cfg.Resolver.ShellService,
		ShellPath:         dbus.ObjectPath(cfg.Resolver.ShellPath),
		Layout:            layout,
		X11:               x11,
		SyncPoll:          config.Millis(cfg.Resolver.SyncPollMs),
	})

	var checks []check
	for _, s := range strategies {
		timeout := cfg.Resolver.Timeout(s.Name())
		if timeout <= 0 {
			timeout = cfg.Resolver.Budget()
		}
		// probes are not bound by the per-press budget
		pctx, cancel := context.WithTimeout(ctx, 10*timeout)
		start := time.Now()
		pos, err := s.Resolve(pctx)
		cancel()
		elapsed := time.Since(start).Round(100 * time.Microsecond)

		switch {
		case err == nil:
			checks = append(checks, check{ui.CheckOK, s.Name(), fmt.Sprintf("%s in %s", pos, elapsed)})
		case errors.Is(err, cursor.ErrUnavailable):
			checks = append(checks, check{ui.CheckWarn, s.Name(), "unavailable"})
		default:
			checks = append(checks, check{ui.CheckFail, s.Name(), err.Error()})
		}
	}
	checks = append(checks, check{ui.CheckOK, cursor.FallbackName, "always available"})
	return checks
}

func checkBus() check {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return check{ui.CheckFail, "dbus", fmt.Sprintf("session bus unavailable: %v", err)}
	}
	defer conn.Close()

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, bus.ServiceName).Store(&owned)
	if err != nil {
		return check{ui.CheckWarn, "dbus", err.Error()}
	}
	if owned {
		return check{ui.CheckOK, "dbus", bus.ServiceName + " is registered"}
	}
	return check{ui.CheckWarn, "dbus", "connected, " + bus.ServiceName + " is not registered (daemon stopped?)"}
}
