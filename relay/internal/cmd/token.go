package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/store"
	"github.com/jsjperu/wha-relay/relay/internal/wizard"
)

// newTokenCmd manages tenant tokens directly in the configured store. Changes
// take effect on the next registration of a running relay.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage tenant (RUC) tokens in the configured store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List RUCs and their tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				tokens, err := s.ListTokens(ctx)
				if err != nil {
					return err
				}
				printTokens(cmd.OutOrStdout(), tokens)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <ruc> <token>",
		Short: "Create or replace the token of a RUC",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := s.UpsertToken(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Token guardado para RUC %s\n", args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <ruc>",
		Short: "Remove the token of a RUC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := s.DeleteToken(ctx, args[0]); err != nil {
					return fmt.Errorf("delete %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Token eliminado para RUC %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, s store.Store) error) error {
	cfg, err := config.Load(resolveConfigPath(cmd, nil, wizard.DefaultOutputPath))
	if err != nil {
		return err
	}
	s, err := store.New(cfg.Storage, newLogger(cfg.Logging, os.Stderr))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(cmd.Context(), s)
}

func printTokens(w io.Writer, tokens map[string]string) {
	if len(tokens) == 0 {
		fmt.Fprintln(w, "No tokens configured.")
		return
	}
	rucs := make([]string, 0, len(tokens))
	for ruc := range tokens {
		rucs = append(rucs, ruc)
	}
	sort.Strings(rucs)
	for _, ruc := range rucs {
		fmt.Fprintf(w, "%-14s %s\n", ruc, tokens[ruc])
	}
}
