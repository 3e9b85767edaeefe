package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/codes"

	"github.com/emx-mail/mcp/pkgs/instrumentation"
	"github.com/emx-mail/mcp/pkgs/logging"
)

// InstrumentedToolHandler wraps a tool handler with a server span, the
// invocation metrics and one log line per call.
//
// Usage:
//
//	s.AddTool(myTool, InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			span.SetStatus(codes.Error, resultText(result))
		default:
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics.RecordToolInvocation(ctx, toolName, status, duration)

		logger := logging.WithTool(sc.logger(), toolName)
		logger.Debug("tool invoked",
			logging.Status(status),
			slog.Duration(logging.KeyDuration, duration),
			slog.String("trace_id", instrumentation.GetTraceID(ctx)),
			logging.Err(err),
		)

		return result, err
	}
}

// resultText returns the first text block of a result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}
