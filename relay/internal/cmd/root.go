package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for wha-relay.
// When invoked without a subcommand, it delegates to "run".
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "wha-relay",
		Short: "wha-relay: WhatsApp notification relay",
		Long: "wha-relay keeps one authenticated WhatsApp session per RUC connected over WebSocket " +
			"and relays send requests from business systems to it.",
		// Bare invocation (no subcommand) behaves as "run".
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newListenCmd())
	root.AddCommand(newMonitorCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	return root
}
