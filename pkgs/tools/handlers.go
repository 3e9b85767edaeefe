package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/emx-mail/mcp/pkgs/email"
	"github.com/emx-mail/mcp/pkgs/instrumentation"
)

// FetchResult is the payload of every fetch tool.
type FetchResult struct {
	Count    int             `json:"count"`
	Messages []email.Message `json:"messages"`
}

// SendResult is the payload of send_email.
type SendResult struct {
	Success bool `json:"success"`
}

// MailboxesResult is the payload of list_mailboxes.
type MailboxesResult struct {
	Count     int             `json:"count"`
	Mailboxes []email.Mailbox `json:"mailboxes"`
}

func handleFetchEmails(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var criteria []string
		if _, ok := request.GetArguments()["criteria"]; ok {
			var err error
			criteria, err = request.RequireStringSlice("criteria")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		mailbox := request.GetString("mailbox", "")
		limit := sc.limit(request.GetInt("limit", 0))

		return sc.runFetch(ctx, email.Raw(criteria, mailbox, limit))
	}
}

func handleFetchBySubject(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subject, err := request.RequireString("subject")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query, err := email.BySubject(subject, sc.limit(request.GetInt("limit", 0)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return sc.runFetch(ctx, query)
	}
}

func handleFetchBySender(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sender, err := request.RequireString("sender")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query, err := email.BySender(sender, sc.limit(request.GetInt("limit", 0)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return sc.runFetch(ctx, query)
	}
}

func handleFetchUnread(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return sc.runFetch(ctx, email.Unread(sc.limit(request.GetInt("limit", 0))))
	}
}

func handleListMailboxes(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := sc.withTimeout(ctx)
		defer cancel()

		ctx, span := instrumentation.StartMailSpan(ctx, "imap.list")
		defer span.End()

		mailboxes, err := sc.Fetcher.Mailboxes(ctx)
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return mcp.NewToolResultError(fmt.Sprintf("failed to list mailboxes: %v", err)), nil
		}
		instrumentation.SetSpanSuccess(span)

		if mailboxes == nil {
			mailboxes = []email.Mailbox{}
		}
		return jsonResult(MailboxesResult{Count: len(mailboxes), Mailboxes: mailboxes})
	}
}

func handleSendEmail(sc *ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		to, err := request.RequireString("to")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		subject, err := request.RequireString("subject")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		body, err := request.RequireString("body")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx, cancel := sc.withTimeout(ctx)
		defer cancel()

		ctx, span := instrumentation.StartMailSpan(ctx, "smtp.send")
		defer span.End()

		ok := sc.Sender.Send(ctx, to, subject, body)
		status := instrumentation.StatusSuccess
		if ok {
			instrumentation.SetSpanSuccess(span)
		} else {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, errors.New("message not accepted"))
		}
		sc.Metrics.RecordSend(ctx, status)

		// A refused send is still a well-formed answer.
		return jsonResult(SendResult{Success: ok})
	}
}

// runFetch executes one fetch under the call timeout and renders the
// result. Fetch failures become error results.
func (sc *ServerContext) runFetch(ctx context.Context, query email.FetchQuery) (*mcp.CallToolResult, error) {
	ctx, cancel := sc.withTimeout(ctx)
	defer cancel()

	ctx, span := instrumentation.StartMailSpan(ctx, "imap.fetch",
		attribute.String(instrumentation.SpanAttrMailbox, query.Mailbox),
		attribute.Int(instrumentation.SpanAttrLimit, query.Limit),
	)
	defer span.End()

	messages, err := sc.Fetcher.Fetch(ctx, query)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch emails: %v", err)), nil
	}
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, len(messages)))
	instrumentation.SetSpanSuccess(span)

	if messages == nil {
		messages = []email.Message{}
	}
	return jsonResult(FetchResult{Count: len(messages), Messages: messages})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode result", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
