// Package tools provides the MCP tools that expose the mail client.
//
// # Available Tools
//
// Fetching:
//   - fetch_emails: newest messages of a mailbox matching raw search terms
//   - fetch_emails_by_subject: newest inbox messages whose subject contains a string
//   - fetch_emails_by_sender: newest inbox messages whose sender contains a string
//   - fetch_unread_emails: newest inbox messages without the \Seen flag
//   - list_mailboxes: mailboxes of the account
//
// Sending:
//   - send_email: submit one plain-text message
//
// Fetch tools return {"count": n, "messages": [...]}, send_email returns
// {"success": bool}. Invalid arguments and failed fetches are reported as
// tool error results, never as protocol errors.
package tools
