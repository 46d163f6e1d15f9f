package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/profile"
	"github.com/bnema/radialmx/internal/ui"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage menu profiles",
	Long:  `List, validate and reload the per-application menu profiles.`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles of the profile store",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Get().ProfilesPath()
		table, err := profile.Load(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SubtleStyle.Render("No profile store at "+path+", showing the builtin default"))
			table = profile.NewTable(nil)
		}
		printProfiles(cmd.OutOrStdout(), path, table.Profiles())
		return nil
	},
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a profile file for problems",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Get().ProfilesPath()
		if len(args) == 1 {
			path = args[0]
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		profiles, issues, err := profile.Decode(data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, is := range issues {
			fmt.Fprintln(out, ui.FormatCheck(ui.CheckWarn, "issue", is.String()))
		}
		if len(issues) > 0 {
			return fmt.Errorf("%s: %d issue(s) in %d profile(s)", path, len(issues), len(profiles))
		}
		fmt.Fprintln(out, ui.FormatCheck(ui.CheckOK, path, fmt.Sprintf("%d profile(s), no issues", len(profiles))))
		return nil
	},
}

var profilesReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running daemon to re-read its profile store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := controlClient().ReloadProfiles(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render(ui.IconSuccess+" Profiles reloaded"))
		return nil
	},
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default profile store",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Get().ProfilesPath()
		if _, err := os.Stat(path); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Profile store already exists at: %s\nUse --force to overwrite\n", path)
				return nil
			}
		}
		if err := profile.Save(path, []profile.Profile{profile.Builtin()}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile store initialized at: %s\n", path)
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesValidateCmd)
	profilesCmd.AddCommand(profilesReloadCmd)
	profilesCmd.AddCommand(profilesInitCmd)

	profilesInitCmd.Flags().Bool("force", false, "Force overwrite existing profiles")

	rootCmd.AddCommand(profilesCmd)
}

func printProfiles(out io.Writer, path string, profiles []profile.Profile) {
	fmt.Fprintln(out, ui.FormatHeader("PROFILES", path))
	for _, p := range profiles {
		fmt.Fprintln(out)
		title := p.Name
		if p.WindowClass != "" {
			title += "  " + ui.SubtleStyle.Render(p.WindowClass)
		}
		fmt.Fprintln(out, ui.SubheaderStyle.Render(title))
		if p.Description != "" {
			fmt.Fprintln(out, "  "+ui.MutedStyle.Render(p.Description))
		}
		fmt.Fprintln(out, ui.FormatSlices(p.Labels(), -1))
		if p.Center != nil {
			fmt.Fprintln(out, "  "+ui.FormatKV("center", p.Center.Label))
		}
	}
}
