package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/renderer"
	"github.com/bnema/radialmx/internal/ui"
)

var (
	watchAddr string
	watchAck  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow menu sessions live",
	Long: `Connect to the renderer endpoint of the running daemon and show sessions,
highlighted slices and outcomes as they happen. With --ack the view
acknowledges finished sessions the way a renderer does.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchAddr, "addr", "a", "", "Renderer endpoint address (default from config)")
	watchCmd.Flags().BoolVar(&watchAck, "ack", false, "Acknowledge finished sessions")
}

// ackingReceiver acknowledges every outcome it passes through.
type ackingReceiver struct {
	client *renderer.Client
}

func (r ackingReceiver) Receive() (renderer.Envelope, error) {
	env, err := r.client.Receive()
	if err == nil && env.Type == renderer.TypeSessionOutcome {
		if _, err := r.client.Ack(env.SessionID); err != nil {
			logger.Debugf("Ack of session %d failed: %v", env.SessionID, err)
		}
	}
	return env, err
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr := watchAddr
	if addr == "" {
		addr = config.Get().Renderer.ListenAddress
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	client, err := renderer.Dial(ctx, addr)
	cancel()
	if err != nil {
		return fmt.Errorf("is the daemon running with the renderer enabled? %w", err)
	}
	defer client.Close()

	var receiver ui.Receiver = client
	if watchAck {
		receiver = ackingReceiver{client: client}
	}

	model := ui.NewWatchModel(addr, receiver)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return err
	}
	if err := model.Err(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), ui.WarningStyle.Render("connection closed: "+err.Error()))
	}
	return nil
}
