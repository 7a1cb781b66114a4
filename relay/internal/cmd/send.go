package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsjperu/wha-relay/pkg/relayclient"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <ruc> <phone-number> <message>",
		Short: "Relay a WhatsApp message to the session of a RUC",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			image, _ := cmd.Flags().GetString("image")
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("WHA_RELAY_SEND_SECRET")
			}

			c := relayclient.NewAdminClient(url)
			c.SendSecret = secret
			res, err := c.Send(cmd.Context(), relayclient.Venta{
				RUC:         args[0],
				PhoneNumber: args[1],
				Message:     args[2],
				ImagePath:   image,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Status)
			if !res.Delivered {
				fmt.Fprintln(out, "warning: no active session for this RUC, the message was not delivered")
			}
			return nil
		},
	}
	cmd.Flags().String("url", "http://localhost:3000", "relay base URL")
	cmd.Flags().String("image", "", "optional image path forwarded to the session")
	cmd.Flags().String("secret", "", "send secret for X-Signature (default $WHA_RELAY_SEND_SECRET)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}
