package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/pkg/relayclient"
	"github.com/jsjperu/wha-relay/relay/internal/config"
)

// newListenCmd connects as a tenant session and prints every relayed event as
// a JSON line. Useful to check tokens and routing without a WhatsApp client.
func newListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <ruc> <token>",
		Short: "Connect as a RUC session and print relayed events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			insecure, _ := cmd.Flags().GetBool("insecure")

			logger := newLogger(config.LoggingConfig{Format: "text", Level: "info"}, os.Stderr)
			sess := relayclient.NewSession(relayclient.SessionConfig{
				URL:           url,
				RUC:           args[0],
				Token:         args[1],
				TLSSkipVerify: insecure,
			}, func(env protocol.RawEnvelope) error {
				return printJSON(cmd, env)
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("url", "ws://localhost:3000/ws", "relay WebSocket URL")
	cmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	return cmd
}
