package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/display"
	"github.com/spf13/cobra"
)

// DisplayInfo represents the display information output
type DisplayInfo struct {
	Monitors []display.Monitor `json:"monitors"`
	Source   string            `json:"source"`
	Error    string            `json:"error,omitempty"`
}

var jsonOutput bool

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Show monitor configuration",
	Long: `Display the monitor layout used to anchor menus. The running daemon's cached
layout is shown when available; otherwise the layout is detected directly.`,
	RunE: runMonitors,
}

func init() {
	monitorsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(monitorsCmd)
}

func runMonitors(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	info := DisplayInfo{Source: "daemon"}

	monitors, err := controlClient().Monitors(cmd.Context())
	if err == nil {
		info.Monitors = monitors
	} else {
		layout, derr := display.Detect(cmd.Context(), config.Get().Display.Backend)
		if derr != nil {
			if jsonOutput {
				info.Error = derr.Error()
				return json.NewEncoder(out).Encode(info)
			}
			return fmt.Errorf("failed to detect monitors: %w", derr)
		}
		info.Monitors = layout.Monitors
		info.Source = layout.Source
	}

	if jsonOutput {
		return json.NewEncoder(out).Encode(info)
	}
	printMonitors(out, info)
	return nil
}

func printMonitors(out io.Writer, info DisplayInfo) {
	monitors := info.Monitors
	if len(monitors) == 0 {
		fmt.Fprintln(out, "No monitors detected")
		return
	}

	fmt.Fprintf(out, "Detected %d monitor(s) via %s:\n\n", len(monitors), info.Source)

	for i, mon := range monitors {
		fmt.Fprintf(out, "Monitor %d:\n", i+1)
		fmt.Fprintf(out, "  Name:       %s\n", mon.Name)
		if mon.ID != "" && mon.ID != mon.Name {
			fmt.Fprintf(out, "  ID:         %s\n", mon.ID)
		}
		fmt.Fprintf(out, "  Resolution: %dx%d\n", mon.Width, mon.Height)
		fmt.Fprintf(out, "  Position:   (%d, %d)\n", mon.X, mon.Y)
		if mon.Primary {
			fmt.Fprintf(out, "  Primary:    Yes\n")
		}
		if mon.Scale != 0 && mon.Scale != 1.0 {
			fmt.Fprintf(out, "  Scale:      %.2fx\n", mon.Scale)
		}
		fmt.Fprintln(out)
	}

	if len(monitors) > 1 {
		minX, minY, maxX, maxY := monitors[0].Bounds()
		for _, mon := range monitors[1:] {
			x1, y1, x2, y2 := mon.Bounds()
			minX, minY = min(minX, x1), min(minY, y1)
			maxX, maxY = max(maxX, x2), max(maxY, y2)
		}
		fmt.Fprintf(out, "Virtual screen: %dx%d\n", maxX-minX, maxY-minY)
	}
}
