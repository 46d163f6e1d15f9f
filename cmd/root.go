package cmd

import (
	"time"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/ipc"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "radialmx",
		Short: "radialmx - radial menu for the mouse gesture button",
		Long: `radialmx turns the gesture button of a Logitech mouse into a radial menu.
Holding the button opens a menu of eight slices around the cursor; releasing it
over a slice runs that slice's shortcut, command or D-Bus call. Menus are chosen
per application from a profile store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				config.SetConfigPath(configFile)
			}
			if err := config.Init(); err != nil {
				return err
			}
			if level := config.Get().Logging.LogLevel; level != "" {
				logger.SetLevel(level)
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.config/radialmx/radialmx.toml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(hoverCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(doctorCmd)
}

// controlClient connects to the daemon named by the loaded configuration.
func controlClient() *ipc.Client {
	return ipc.NewClientWithTimeout(config.Get().SocketPath(), 3*time.Second)
}
