package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/emx-mail/mcp/pkgs/email"
	"github.com/emx-mail/mcp/pkgs/instrumentation"
)

// MessageFetcher is the read side of the mail client. *email.Fetcher
// implements it.
type MessageFetcher interface {
	Fetch(ctx context.Context, query email.FetchQuery) ([]email.Message, error)
	Mailboxes(ctx context.Context) ([]email.Mailbox, error)
}

// MailSender is the write side of the mail client. *email.Sender implements
// it.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// ServerContext carries what the tool handlers share.
type ServerContext struct {
	Fetcher MessageFetcher
	Sender  MailSender

	// DefaultLimit applies when a call omits limit. Zero means
	// email.DefaultLimit.
	DefaultLimit int

	// Timeout bounds every tool call. Zero disables it.
	Timeout time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

func (sc *ServerContext) logger() *slog.Logger {
	if sc.Logger == nil {
		return slog.Default()
	}
	return sc.Logger
}

func (sc *ServerContext) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if sc.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, sc.Timeout)
}

func (sc *ServerContext) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	if sc.DefaultLimit > 0 {
		return sc.DefaultLimit
	}
	return email.DefaultLimit
}
