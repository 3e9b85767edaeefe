package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFoldersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "folders",
		Aliases: []string{"mailboxes"},
		Short:   "List all mailboxes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			mailboxes, err := newFetcher(cfg, a.logger, nil).Mailboxes(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Folders:")
			for _, mb := range mailboxes {
				attrs := ""
				if len(mb.Attributes) > 0 {
					attrs = " [" + strings.Join(mb.Attributes, " ") + "]"
				}
				fmt.Fprintf(out, "  %s%s\n", mb.Name, attrs)
			}
			return nil
		},
	}
}
