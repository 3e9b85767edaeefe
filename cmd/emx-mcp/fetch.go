package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/emx-mail/mcp/pkgs/email"
)

type fetchFlags struct {
	limit    int
	mailbox  string
	criteria []string
	subject  string
	from     string
	unread   bool
	verbose  bool
	asJSON   bool
}

func newFetchCmd(a *app) *cobra.Command {
	var f fetchFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the newest messages of a mailbox",
		Long: `Fetch the newest messages of a mailbox, newest first, without marking
them as read.

Examples:
  emx-mcp fetch --limit 5
  emx-mcp fetch --unread
  emx-mcp fetch --subject invoice
  emx-mcp fetch --mailbox Archive --criteria SINCE --criteria 01-Jan-2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if f.limit <= 0 {
				f.limit = cfg.Fetch.Limit
			}
			query, err := f.query()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			messages, err := newFetcher(cfg, a.logger, nil).Fetch(ctx, query)
			if err != nil {
				return err
			}
			if f.asJSON {
				return writeJSON(cmd.OutOrStdout(), messages)
			}
			printMessages(cmd.OutOrStdout(), query, messages, f.verbose)
			return nil
		},
	}

	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum messages to show (default: fetch.limit from config)")
	cmd.Flags().StringVar(&f.mailbox, "mailbox", email.DefaultMailbox, "Mailbox to search")
	cmd.Flags().StringArrayVar(&f.criteria, "criteria", nil, "IMAP search term (repeatable)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Only messages whose subject contains this text")
	cmd.Flags().StringVar(&f.from, "from", "", "Only messages whose sender contains this text")
	cmd.Flags().BoolVar(&f.unread, "unread", false, "Only unread messages")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Show a preview of each body")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print messages as JSON")
	cmd.MarkFlagsMutuallyExclusive("criteria", "subject", "from", "unread")

	return cmd
}

// query maps the flags onto a FetchQuery. The intent flags search INBOX.
func (f fetchFlags) query() (email.FetchQuery, error) {
	switch {
	case f.subject != "":
		return email.BySubject(f.subject, f.limit)
	case f.from != "":
		return email.BySender(f.from, f.limit)
	case f.unread:
		return email.Unread(f.limit), nil
	case f.mailbox == "":
		return email.FetchQuery{}, errors.New("--mailbox must not be empty")
	default:
		return email.Raw(f.criteria, f.mailbox, f.limit), nil
	}
}

func printMessages(w io.Writer, query email.FetchQuery, messages []email.Message, verbose bool) {
	fmt.Fprintf(w, "Mailbox: %s | Showing: %d\n\n", query.Mailbox, len(messages))
	for i, msg := range messages {
		fmt.Fprintf(w, "[%d] From: %s\n", i+1, msg.From)
		fmt.Fprintf(w, "    Subject: %s\n", msg.Subject)
		fmt.Fprintf(w, "    Date: %s\n", msg.Date.Format(time.RFC1123))
		fmt.Fprintf(w, "    Message-ID: %s\n", msg.MessageID)
		if len(msg.Attachments) > 0 {
			fmt.Fprintf(w, "    Attachments: %d\n", len(msg.Attachments))
			for j, att := range msg.Attachments {
				fmt.Fprintf(w, "      [%d] %s (%s, %d bytes)\n", j+1, att.Filename, att.ContentType, att.Size)
			}
		}
		if verbose {
			fmt.Fprintf(w, "    Preview: %s\n", truncate(msg.Text, 100))
		}
		fmt.Fprintln(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
