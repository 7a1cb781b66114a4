package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jsjperu/wha-relay/pkg/cli"
	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/wizard"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard to generate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			defaults, _ := cmd.Flags().GetBool("defaults")

			logger := newLogger(config.LoggingConfig{Format: "text", Level: "warn"}, os.Stderr)
			w := wizard.New(cli.DefaultPrompter(), logger)
			if defaults {
				return w.RunDefaults(output)
			}
			return w.Run(output)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: "+wizard.DefaultOutputPath+")")
	cmd.Flags().Bool("defaults", false, "non-interactive: build the config from WHA_RELAY_* environment variables")
	return cmd
}
