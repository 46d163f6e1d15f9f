package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/ipc"
	"github.com/bnema/radialmx/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the radialmx daemon",
	Long:  `Check the running daemon: trigger device health, battery level, the active menu session and the last finished session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := controlClient().Status(cmd.Context())
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), ui.ErrorStyle.Render(ui.IconError+" radialmx daemon is not running"))
			fmt.Fprintln(cmd.OutOrStdout(), ui.MutedStyle.Render(err.Error()))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderStatus(config.Get().SocketPath(), status))
		return nil
	},
}

func renderStatus(socket string, status *ipc.StatusReply) string {
	var output strings.Builder

	output.WriteString(ui.FormatHeader("DAEMON STATUS", socket))
	output.WriteString("\n\n")

	var box strings.Builder
	box.WriteString(ui.FormatKV("device", ui.FormatDeviceState(status.Device)) + "\n")
	box.WriteString(ui.FormatKV("sessions", fmt.Sprintf("%d", status.Sessions)))
	if b := status.Battery; b != nil {
		box.WriteString("\n" + ui.FormatKV("battery", formatBattery(b)))
	}
	output.WriteString(ui.BoxStyle.Render(box.String()))
	output.WriteString("\n\n")

	output.WriteString(ui.SubheaderStyle.Render("Active session"))
	output.WriteString("\n")
	if a := status.Active; a != nil {
		output.WriteString(renderSession(a))
	} else {
		output.WriteString("  " + ui.SubtleStyle.Render("none") + "\n")
	}

	if last := status.Last; last != nil {
		output.WriteString("\n")
		output.WriteString(ui.SubheaderStyle.Render("Last session"))
		output.WriteString("\n")
		ack := "pending"
		if last.Acknowledged {
			ack = "acknowledged"
		}
		output.WriteString("  " + ui.FormatKV(fmt.Sprintf("#%d", last.ID), last.Outcome+", "+ack) + "\n")
	}

	return output.String()
}

func formatBattery(b *ipc.BatteryInfo) string {
	switch {
	case !b.Available && b.Error != "":
		return ui.MutedStyle.Render("unavailable: " + b.Error)
	case !b.Available:
		return ui.MutedStyle.Render("unknown")
	case b.Charging:
		return fmt.Sprintf("%d%% (charging)", b.Percent)
	default:
		return fmt.Sprintf("%d%%", b.Percent)
	}
}

func renderSession(s *ipc.SessionInfo) string {
	var b strings.Builder
	b.WriteString("  " + ui.FormatKV("id", fmt.Sprintf("#%d", s.ID)) + "\n")
	b.WriteString("  " + ui.FormatKV("state", s.State) + "\n")
	b.WriteString("  " + ui.FormatKV("profile", s.Profile) + "\n")
	if s.WindowClass != "" {
		b.WriteString("  " + ui.FormatKV("window", s.WindowClass) + "\n")
	}
	b.WriteString("  " + ui.FormatKV("anchor", fmt.Sprintf("(%.0f, %.0f) via %s", s.X, s.Y, s.Strategy)) + "\n")
	if s.Highlighted >= 0 {
		b.WriteString("  " + ui.FormatKV("highlighted", fmt.Sprintf("%d", s.Highlighted)) + "\n")
	}
	return b.String()
}
