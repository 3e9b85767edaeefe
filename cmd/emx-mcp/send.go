package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emx-mail/mcp/pkgs/email"
)

type sendFlags struct {
	to, subject, text, textFile string
	dryRun                      bool
}

func newSendCmd(a *app) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a plain-text email",
		Long: `Send a plain-text email from the configured account.

Examples:
  emx-mcp send --to bob@example.com --subject Hi --text "Hello Bob"
  echo "Hello" | emx-mcp send --to bob@example.com,carol@example.com --subject Hi --text-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := f.body(cmd.InOrStdin())
			if err != nil {
				return err
			}

			recipients, err := email.ParseRecipients(f.to)
			if err != nil {
				return err
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}

			opts := email.SendOptions{
				From:     cfg.From(),
				To:       recipients,
				Subject:  f.subject,
				TextBody: body,
			}
			if f.dryRun {
				printPreview(cmd.OutOrStdout(), opts)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			// The CLI reports the cause, unlike the best-effort send tool.
			if err := email.NewSMTPClient(cfg.SMTPConfig()).Send(ctx, opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Email sent successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&f.to, "to", "", "Recipients (comma-separated)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Email subject")
	cmd.Flags().StringVar(&f.text, "text", "", "Plain text body")
	cmd.Flags().StringVar(&f.textFile, "text-file", "", "Plain text body from file (\"-\" for stdin)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Preview email without sending")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")

	return cmd
}

// body resolves the message body: --text-file takes precedence over --text.
func (f sendFlags) body(stdin io.Reader) (string, error) {
	if f.textFile != "" {
		body, err := readBodySource(f.textFile, stdin)
		if err != nil {
			return "", fmt.Errorf("--text-file: %w", err)
		}
		return body, nil
	}
	if f.text == "" {
		return "", errors.New("--text or --text-file is required")
	}
	return f.text, nil
}

func printPreview(w io.Writer, opts email.SendOptions) {
	fmt.Fprintln(w, "=== Email Preview (Dry-Run Mode) ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "From:    %s\n", formatAddress(opts.From))
	fmt.Fprintf(w, "To:      %s\n", formatAddressList(opts.To))
	fmt.Fprintf(w, "Subject: %s\n", opts.Subject)
	fmt.Fprintln(w)
	fmt.Fprintln(w, truncate(opts.TextBody, 500))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== End of Preview ===")
	fmt.Fprintln(w, "Dry-run mode: email was NOT sent")
}
