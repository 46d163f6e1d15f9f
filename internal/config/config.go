// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Display  DisplayConfig  `mapstructure:"display"`
	Session  SessionConfig  `mapstructure:"session"`
	Haptics  HapticsConfig  `mapstructure:"haptics"`
	Battery  BatteryConfig  `mapstructure:"battery"`
	Actions  ActionsConfig  `mapstructure:"actions"`
	Renderer RendererConfig `mapstructure:"renderer"`
	IPC      IPCConfig      `mapstructure:"ipc"`
	DBus     DBusConfig     `mapstructure:"dbus"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DeviceConfig selects the trigger device and how its button is observed.
type DeviceConfig struct {
	Source              string   `mapstructure:"source"`      // auto, hidpp, evdev
	Path                string   `mapstructure:"path"`        // explicit /dev/input/eventN or by-id path
	Name                string   `mapstructure:"name"`        // substring match on the evdev device name
	VendorID            string   `mapstructure:"vendor_id"`   // hex, without 0x
	ProductIDs          []string `mapstructure:"product_ids"` // hex, empty matches any product
	TriggerKey          string   `mapstructure:"trigger_key"` // evdev key name the button is diverted to
	GestureCID          int      `mapstructure:"gesture_cid"` // HID++ control id of the gesture button
	DebounceMs          int      `mapstructure:"debounce_ms"`
	RetryIntervalMs     int      `mapstructure:"retry_interval_ms"`
	ReconnectCooldownMs int      `mapstructure:"reconnect_cooldown_ms"`
}

// ResolverConfig tunes the cursor resolver strategies.
type ResolverConfig struct {
	BudgetMs   int            `mapstructure:"budget_ms"`
	Strategies []string       `mapstructure:"strategies"`
	Timeouts   map[string]int `mapstructure:"timeouts"` // per strategy, milliseconds
	SyncPollMs int            `mapstructure:"sync_poll_ms"`

	// GNOME Shell helper extension, interface named like the service
	ShellService string `mapstructure:"shell_service"`
	ShellPath    string `mapstructure:"shell_path"`
}

// DisplayConfig controls monitor layout detection.
type DisplayConfig struct {
	Backend         string `mapstructure:"backend"`          // auto, hyprland, sway, wlr-randr, xrandr
	RefreshInterval int    `mapstructure:"refresh_interval"` // seconds
}

// SessionConfig holds state machine parameters.
type SessionConfig struct {
	CenterRadius float64 `mapstructure:"center_radius"` // logical pixels
	InboxSize    int     `mapstructure:"inbox_size"`
	RecentLimit  int     `mapstructure:"recent_limit"` // finished sessions remembered for acknowledgement
}

// HapticsConfig controls tactile feedback.
type HapticsConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	Intensity         int  `mapstructure:"intensity"` // global scale, percent
	MenuAppear        int  `mapstructure:"menu_appear"`
	SliceChange       int  `mapstructure:"slice_change"`
	Confirm           int  `mapstructure:"confirm"`
	Invalid           int  `mapstructure:"invalid"`
	SliceDebounceMs   int  `mapstructure:"slice_debounce_ms"`
	ReentryDebounceMs int  `mapstructure:"reentry_debounce_ms"`
}

// BatteryConfig controls battery polling over HID++.
type BatteryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PollInterval int  `mapstructure:"poll_interval"` // seconds
}

// ActionsConfig controls action execution.
type ActionsConfig struct {
	RemoteCallTimeoutMs int    `mapstructure:"remote_call_timeout_ms"`
	ShortcutBackend     string `mapstructure:"shortcut_backend"` // auto, uinput, xdotool, ydotool
}

// RendererConfig configures the websocket endpoint used by the menu renderer.
type RendererConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	ListenAddress  string   `mapstructure:"listen_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IPCConfig configures the local control socket.
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// DBusConfig toggles the session bus service.
type DBusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ProfilesConfig locates the profile store and the focus source.
type ProfilesConfig struct {
	Path        string `mapstructure:"path"`
	Watch       bool   `mapstructure:"watch"`
	FocusSource string `mapstructure:"focus_source"` // auto, hyprland, x11, none
	FocusPollMs int    `mapstructure:"focus_poll_ms"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"` // Enable/disable file logging
	LogLevel    string `mapstructure:"log_level"`    // Override LOG_LEVEL env var
}

// Strategy names in their default priority order.
var DefaultStrategies = []string{
	"kwin-script",
	"hyprland-ipc",
	"shell-extension",
	"x11-query",
	"x11-sync",
	"xdotool",
	"static-center",
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Device: DeviceConfig{
			Source:              "auto",
			VendorID:            "046d",
			ProductIDs:          []string{"b034", "c548", "c52b"},
			TriggerKey:          "KEY_F19",
			GestureCID:          0x00C3,
			DebounceMs:          15,
			RetryIntervalMs:     2000,
			ReconnectCooldownMs: 5000,
		},
		Resolver: ResolverConfig{
			BudgetMs:   50,
			Strategies: DefaultStrategies,
			Timeouts: map[string]int{
				"kwin-script":     20,
				"hyprland-ipc":    10,
				"shell-extension": 10,
				"x11-query":       8,
				"x11-sync":        15,
				"xdotool":         15,
				"static-center":   0,
			},
			SyncPollMs:   4,
			ShellService: "org.juhradial.CursorHelper",
			ShellPath:    "/org/juhradial/CursorHelper",
		},
		Display: DisplayConfig{
			Backend:         "auto",
			RefreshInterval: 30,
		},
		Session: SessionConfig{
			CenterRadius: 35,
			InboxSize:    64,
			RecentLimit:  32,
		},
		Haptics: HapticsConfig{
			Enabled:           true,
			Intensity:         100,
			MenuAppear:        20,
			SliceChange:       40,
			Confirm:           80,
			Invalid:           30,
			SliceDebounceMs:   20,
			ReentryDebounceMs: 50,
		},
		Battery: BatteryConfig{
			Enabled:      true,
			PollInterval: 2,
		},
		Actions: ActionsConfig{
			RemoteCallTimeoutMs: 500,
			ShortcutBackend:     "auto",
		},
		Renderer: RendererConfig{
			Enabled:        true,
			ListenAddress:  "127.0.0.1:47821",
			AllowedOrigins: []string{},
		},
		IPC: IPCConfig{
			SocketPath: "",
		},
		DBus: DBusConfig{
			Enabled: true,
		},
		Profiles: ProfilesConfig{
			Path:        "",
			Watch:       true,
			FocusSource: "auto",
			FocusPollMs: 250,
		},
		Logging: LoggingConfig{
			FileLogging: false,
			LogLevel:    "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("radialmx")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/radialmx")
		if dir := userConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	return nil
}

// setDefaults registers individual fields so partial files merge properly.
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("device.source", d.Device.Source)
	viper.SetDefault("device.path", d.Device.Path)
	viper.SetDefault("device.name", d.Device.Name)
	viper.SetDefault("device.vendor_id", d.Device.VendorID)
	viper.SetDefault("device.product_ids", d.Device.ProductIDs)
	viper.SetDefault("device.trigger_key", d.Device.TriggerKey)
	viper.SetDefault("device.gesture_cid", d.Device.GestureCID)
	viper.SetDefault("device.debounce_ms", d.Device.DebounceMs)
	viper.SetDefault("device.retry_interval_ms", d.Device.RetryIntervalMs)
	viper.SetDefault("device.reconnect_cooldown_ms", d.Device.ReconnectCooldownMs)

	viper.SetDefault("resolver.budget_ms", d.Resolver.BudgetMs)
	viper.SetDefault("resolver.strategies", d.Resolver.Strategies)
	for name, ms := range d.Resolver.Timeouts {
		viper.SetDefault("resolver.timeouts."+name, ms)
	}
	viper.SetDefault("resolver.sync_poll_ms", d.Resolver.SyncPollMs)
	viper.SetDefault("resolver.shell_service", d.Resolver.ShellService)
	viper.SetDefault("resolver.shell_path", d.Resolver.ShellPath)

	viper.SetDefault("display.backend", d.Display.Backend)
	viper.SetDefault("display.refresh_interval", d.Display.RefreshInterval)

	viper.SetDefault("session.center_radius", d.Session.CenterRadius)
	viper.SetDefault("session.inbox_size", d.Session.InboxSize)
	viper.SetDefault("session.recent_limit", d.Session.RecentLimit)

	viper.SetDefault("battery.enabled", d.Battery.Enabled)
	viper.SetDefault("battery.poll_interval", d.Battery.PollInterval)

	viper.SetDefault("haptics.enabled", d.Haptics.Enabled)
	viper.SetDefault("haptics.intensity", d.Haptics.Intensity)
	viper.SetDefault("haptics.menu_appear", d.Haptics.MenuAppear)
	viper.SetDefault("haptics.slice_change", d.Haptics.SliceChange)
	viper.SetDefault("haptics.confirm", d.Haptics.Confirm)
	viper.SetDefault("haptics.invalid", d.Haptics.Invalid)
	viper.SetDefault("haptics.slice_debounce_ms", d.Haptics.SliceDebounceMs)
	viper.SetDefault("haptics.reentry_debounce_ms", d.Haptics.ReentryDebounceMs)

	viper.SetDefault("actions.remote_call_timeout_ms", d.Actions.RemoteCallTimeoutMs)
	viper.SetDefault("actions.shortcut_backend", d.Actions.ShortcutBackend)

	viper.SetDefault("renderer.enabled", d.Renderer.Enabled)
	viper.SetDefault("renderer.listen_address", d.Renderer.ListenAddress)
	viper.SetDefault("renderer.allowed_origins", d.Renderer.AllowedOrigins)

	viper.SetDefault("ipc.socket_path", d.IPC.SocketPath)
	viper.SetDefault("dbus.enabled", d.DBus.Enabled)

	viper.SetDefault("profiles.path", d.Profiles.Path)
	viper.SetDefault("profiles.watch", d.Profiles.Watch)
	viper.SetDefault("profiles.focus_source", d.Profiles.FocusSource)
	viper.SetDefault("profiles.focus_poll_ms", d.Profiles.FocusPollMs)

	viper.SetDefault("logging.file_logging", d.Logging.FileLogging)
	viper.SetDefault("logging.log_level", d.Logging.LogLevel)
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Device.Source {
	case "auto", "hidpp", "evdev":
	default:
		return fmt.Errorf("device.source must be auto, hidpp or evdev, got %q", c.Device.Source)
	}
	if c.Resolver.ShellPath != "" && !strings.HasPrefix(c.Resolver.ShellPath, "/") {
		return fmt.Errorf("resolver.shell_path must be an absolute object path, got %q", c.Resolver.ShellPath)
	}
	if c.Resolver.BudgetMs <= 0 {
		return fmt.Errorf("resolver.budget_ms must be positive")
	}
	if c.Session.CenterRadius < 0 {
		return fmt.Errorf("session.center_radius must not be negative")
	}
	if c.Haptics.Intensity < 0 || c.Haptics.Intensity > 100 {
		return fmt.Errorf("haptics.intensity must be within 0..100")
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, "radialmx.toml")
	}
	return "/etc/radialmx/radialmx.toml"
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	return userConfigDir()
}

func userConfigDir() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return fmt.Sprintf("/home/%s/.config/radialmx", sudoUser)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "radialmx")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "radialmx")
	}
	return ""
}

// ProfilesPath returns the configured profile store path or its default location.
func (c *Config) ProfilesPath() string {
	if c.Profiles.Path != "" {
		return c.Profiles.Path
	}
	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, "profiles.toml")
	}
	return "/etc/radialmx/profiles.toml"
}

// SocketPath returns the control socket path.
func (c *Config) SocketPath() string {
	if c.IPC.SocketPath != "" {
		return c.IPC.SocketPath
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "default"
	}
	return fmt.Sprintf("/tmp/radialmx-%s.sock", user)
}

// Budget returns the total cursor resolution budget.
func (r ResolverConfig) Budget() time.Duration {
	return ms(r.BudgetMs)
}

// Timeout returns the per-attempt timeout for a strategy, zero when unset.
func (r ResolverConfig) Timeout(name string) time.Duration {
	return ms(r.Timeouts[name])
}

// Millis converts a millisecond config value to a duration.
func Millis(v int) time.Duration {
	return ms(v)
}

func ms(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}
