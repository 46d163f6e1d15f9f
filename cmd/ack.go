package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ackCmd = &cobra.Command{
	Use:   "ack <session>",
	Short: "Acknowledge a menu session",
	Long: `Acknowledge a session the way a renderer does once it has shown the outcome.
Acknowledging the active session dismisses its menu.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		changed, err := controlClient().Ack(cmd.Context(), id)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(cmd.OutOrStdout(), "session #%d acknowledged\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "session #%d was already acknowledged\n", id)
		}
		return nil
	},
}
