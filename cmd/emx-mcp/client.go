package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emx-mail/mcp/pkgs/config"
	"github.com/emx-mail/mcp/pkgs/email"
	"github.com/emx-mail/mcp/pkgs/instrumentation"
)

// newFetcher builds the IMAP fetch pipeline for cfg. Every fetch reports
// its outcome to metrics and to the active span.
func newFetcher(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) *email.Fetcher {
	return email.NewFetcher(email.NewIMAPDialer(cfg.IMAPConfig(), logger),
		email.WithDecodeWorkers(cfg.Fetch.Workers),
		email.WithLogger(logger),
		email.WithStatsHook(func(ctx context.Context, stats email.FetchStats) {
			status := instrumentation.StatusSuccess
			if stats.Err != nil {
				status = instrumentation.StatusError
			}
			metrics.RecordFetch(ctx, status, stats.Returned, stats.Discarded, stats.Duration)
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.Int(instrumentation.SpanAttrDiscarded, stats.Discarded),
			)
		}),
	)
}

func newSender(cfg *config.Config, logger *slog.Logger) *email.Sender {
	return email.NewSender(cfg.SMTPConfig(), cfg.From(), logger)
}
