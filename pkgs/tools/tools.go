package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Tool names.
const (
	ToolFetchEmails          = "fetch_emails"
	ToolFetchEmailsBySubject = "fetch_emails_by_subject"
	ToolFetchEmailsBySender  = "fetch_emails_by_sender"
	ToolFetchUnreadEmails    = "fetch_unread_emails"
	ToolSendEmail            = "send_email"
	ToolListMailboxes        = "list_mailboxes"
)

func limitOption() mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum number of messages to return, newest first (default: 10)"),
		mcp.Min(1),
	)
}

// RegisterTools registers the mail tools with the MCP server.
func RegisterTools(s *mcpserver.MCPServer, sc *ServerContext) {
	fetchEmails := mcp.NewTool(ToolFetchEmails,
		mcp.WithDescription("Fetch the newest messages of a mailbox that match IMAP search criteria"),
		mcp.WithReadOnlyHintAnnotation(true),
		limitOption(),
		mcp.WithString("mailbox",
			mcp.Description("Mailbox to search (default: INBOX)"),
		),
		mcp.WithArray("criteria",
			mcp.Description(`IMAP search terms, e.g. ["UNSEEN"] or ["SUBJECT", "invoice"] (default: ["ALL"])`),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(fetchEmails, InstrumentedToolHandler(ToolFetchEmails, sc, handleFetchEmails(sc)))

	bySubject := mcp.NewTool(ToolFetchEmailsBySubject,
		mcp.WithDescription("Fetch the newest inbox messages whose subject contains the given text"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Text the subject must contain"),
		),
		limitOption(),
	)
	s.AddTool(bySubject, InstrumentedToolHandler(ToolFetchEmailsBySubject, sc, handleFetchBySubject(sc)))

	bySender := mcp.NewTool(ToolFetchEmailsBySender,
		mcp.WithDescription("Fetch the newest inbox messages whose sender contains the given text"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("sender",
			mcp.Required(),
			mcp.Description("Address or name the sender must contain"),
		),
		limitOption(),
	)
	s.AddTool(bySender, InstrumentedToolHandler(ToolFetchEmailsBySender, sc, handleFetchBySender(sc)))

	unread := mcp.NewTool(ToolFetchUnreadEmails,
		mcp.WithDescription("Fetch the newest unread inbox messages without marking them read"),
		mcp.WithReadOnlyHintAnnotation(true),
		limitOption(),
	)
	s.AddTool(unread, InstrumentedToolHandler(ToolFetchUnreadEmails, sc, handleFetchUnread(sc)))

	mailboxes := mcp.NewTool(ToolListMailboxes,
		mcp.WithDescription("List the mailboxes of the account"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(mailboxes, InstrumentedToolHandler(ToolListMailboxes, sc, handleListMailboxes(sc)))

	send := mcp.NewTool(ToolSendEmail,
		mcp.WithDescription("Send a plain-text email from the configured account"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient address; separate several with commas"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Subject line"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text body"),
		),
	)
	s.AddTool(send, InstrumentedToolHandler(ToolSendEmail, sc, handleSendEmail(sc)))
}
