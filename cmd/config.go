package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage radialmx configuration",
	Long:  `Manage the radialmx configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, ui.FormatHeader("CONFIGURATION", config.GetConfigPath()))
		fmt.Fprintln(out, ui.FormatKV("profiles", cfg.ProfilesPath()))
		fmt.Fprintln(out, ui.FormatKV("socket", cfg.SocketPath()))
		fmt.Fprintln(out)

		// merged view of defaults, file and flags
		return toml.NewEncoder(out).Encode(viper.AllSettings())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Check if config already exists
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			logger.Infof("Configuration file already exists at: %s", configPath)

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("You can now:")
		logger.Info("  - Run 'radialmx setup' to pick the trigger device")
		logger.Info("  - Edit the configuration file directly")
		logger.Info("  - Use 'radialmx config show' to view current settings")

		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")

	rootCmd.AddCommand(configCmd)
}
