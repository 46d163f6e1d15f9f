package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/daemon"
	"github.com/bnema/radialmx/internal/logger"
	godaemon "github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var detach bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the radialmx daemon",
	Long: `Run the radialmx daemon. It listens to the gesture button, opens menu
sessions, serves the renderer websocket endpoint, the D-Bus service and the
local control socket, and runs the selected slice actions.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVarP(&detach, "detach", "d", false, "Detach from the terminal and run in the background")
	daemonCmd.Flags().String("device-source", "", "Trigger source: auto, hidpp or evdev")
	daemonCmd.Flags().String("device-path", "", "Explicit evdev device path")
	daemonCmd.Flags().String("renderer-addr", "", "Listen address of the renderer websocket endpoint")
	daemonCmd.Flags().String("socket", "", "Control socket path")

	// Bind flags to viper
	viper.BindPFlag("device.source", daemonCmd.Flags().Lookup("device-source"))
	viper.BindPFlag("device.path", daemonCmd.Flags().Lookup("device-path"))
	viper.BindPFlag("renderer.listen_address", daemonCmd.Flags().Lookup("renderer-addr"))
	viper.BindPFlag("ipc.socket_path", daemonCmd.Flags().Lookup("socket"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if detach {
		dctx, child, err := reborn()
		if err != nil {
			return err
		}
		if child != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "radialmx daemon started in background (pid %d)\n", child.Pid)
			return nil
		}
		defer dctx.Release()
	}

	if cfg.Logging.FileLogging || detach {
		if err := logger.SetupFileLogging("radialmx"); err != nil {
			logger.Warnf("File logging disabled: %v", err)
		} else {
			defer logger.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	logger.Infof("Config file: %s", config.GetConfigPath())
	logger.Infof("Profiles: %s", cfg.ProfilesPath())
	if cfg.Renderer.Enabled {
		logger.Infof("Renderer endpoint: ws://%s/ws", cfg.Renderer.ListenAddress)
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	d.Stop()
	return nil
}

// reborn forks a detached copy of the process. The parent gets the child
// process back; the child gets nil and continues as the daemon.
func reborn() (*godaemon.Context, *os.Process, error) {
	dir := logger.LogDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dctx := &godaemon.Context{
		PidFileName: filepath.Join(dir, "radialmx.pid"),
		PidFilePerm: 0644,
		LogFileName: filepath.Join(dir, "radialmx.out"),
		LogFilePerm: 0640,
		WorkDir:     "/",
		Umask:       027,
		Args:        os.Args,
	}

	child, err := dctx.Reborn()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to detach: %w", err)
	}
	return dctx, child, nil
}
