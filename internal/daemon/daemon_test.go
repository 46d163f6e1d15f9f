package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/radialmx/internal/battery"
	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/hidpp"
	"github.com/bnema/radialmx/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig
	cfg.Device.Source = "evdev"
	cfg.Device.Path = filepath.Join(dir, "event-missing")
	cfg.Device.RetryIntervalMs = 100
	cfg.Device.ReconnectCooldownMs = 0
	cfg.Haptics.Enabled = false
	cfg.Battery.Enabled = false
	cfg.Actions.ShortcutBackend = "xdotool"
	cfg.Renderer.ListenAddress = "127.0.0.1:0"
	cfg.IPC.SocketPath = filepath.Join(dir, "radialmx.sock")
	cfg.DBus.Enabled = false
	cfg.Profiles.Path = filepath.Join(dir, "profiles.toml")
	cfg.Profiles.FocusSource = "none"
	cfg.Resolver.Strategies = []string{"static-center"}
	return &cfg
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	d, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	// second start is a no-op
	require.NoError(t, d.Start(ctx))

	_, err = os.Stat(cfg.Profiles.Path)
	require.NoError(t, err, "default profile store should be created")

	client := ipc.NewClientWithTimeout(cfg.SocketPath(), 2*time.Second)

	t.Run("device degrades when the trigger is missing", func(t *testing.T) {
		require.Eventually(t, func() bool {
			st, err := client.Status(ctx)
			return err == nil && st.Device == "degraded"
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("idle daemon has no session", func(t *testing.T) {
		active, err := client.Active(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("reload keeps profiles", func(t *testing.T) {
		require.NoError(t, client.ReloadProfiles(ctx))
		assert.NotEmpty(t, d.profiles.Table().Profiles())
	})

	t.Run("monitors always describe a layout", func(t *testing.T) {
		monitors, err := client.Monitors(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, monitors)
	})

	d.Stop()
	d.Stop()

	_, err = os.Stat(cfg.SocketPath())
	assert.True(t, os.IsNotExist(err), "socket should be removed on stop")

	select {
	case <-d.Machine().Done():
	default:
		t.Fatal("session machine still running after Stop")
	}
}

func TestNewRejectsBadDeviceConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.TriggerKey = "KEY_DOES_NOT_EXIST"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Device.VendorID = "zz"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

type fakeBattery struct{}

func (fakeBattery) Battery(ctx context.Context) (hidpp.Battery, error) {
	return hidpp.Battery{Percent: 88, Charging: true, Feature: hidpp.FeatureUnifiedBattery}, nil
}

func (fakeBattery) Close() error { return nil }

func TestBatteryStatus(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	d, err := New(ctx, cfg)
	require.NoError(t, err)
	client := ipc.NewClientWithTimeout(cfg.SocketPath(), 2*time.Second)

	require.NoError(t, d.Start(ctx))
	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Battery, "battery polling is off")
	d.Stop()

	d, err = New(ctx, cfg)
	require.NoError(t, err)
	d.battery = &battery.Monitor{
		Interval: time.Hour,
		Open:     func(context.Context) (battery.Device, error) { return fakeBattery{}, nil },
	}
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.Battery != nil && st.Battery.Available
	}, 3*time.Second, 20*time.Millisecond)
	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(88), st.Battery.Percent)
	assert.True(t, st.Battery.Charging)
}
