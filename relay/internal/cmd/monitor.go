package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsjperu/wha-relay/pkg/cli"
	"github.com/jsjperu/wha-relay/pkg/relayclient"
	"github.com/jsjperu/wha-relay/relay/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of connected sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			user, _ := cmd.Flags().GetString("user")
			interval, _ := cmd.Flags().GetDuration("interval")

			c := relayclient.NewAdminClient(url)
			if user != "" {
				password := os.Getenv("WHA_RELAY_ADMIN_PASSWORD")
				if password == "" {
					password = cli.DefaultPrompter().AskPassword("Password for " + user)
				}
				if err := c.Login(cmd.Context(), user, password); err != nil {
					return fmt.Errorf("login: %w", err)
				}
			}
			return monitor.Run(c, url, interval)
		},
	}
	cmd.Flags().String("url", "http://localhost:3000", "relay base URL")
	cmd.Flags().String("user", "", "admin username, when the admin API requires login")
	cmd.Flags().Duration("interval", 2*time.Second, "refresh interval")
	return cmd
}
