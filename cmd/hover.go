package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var hoverCmd = &cobra.Command{
	Use:   "hover <session> <angle> <distance>",
	Short: "Report a pointer position to the active menu session",
	Long: `Report where the pointer is relative to the menu center, as a renderer would.
The angle is in degrees, clockwise from north. The distance is in logical pixels.
Prints the highlighted slice, or "center" inside the dead zone.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		angle, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid angle %q: %w", args[1], err)
		}
		distance, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid distance %q: %w", args[2], err)
		}

		index, err := controlClient().Hover(cmd.Context(), id, angle, distance)
		if err != nil {
			return err
		}
		if index < 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "center")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), index)
		return nil
	},
}

func parseSessionID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}
