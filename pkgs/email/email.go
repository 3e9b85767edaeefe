package email

import (
	"strings"
	"time"
)

// Message is one fully assembled mail message.
type Message struct {
	MessageID   string       `json:"messageId"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Date        time.Time    `json:"date"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments"`

	// SeqNum is the mailbox sequence number the message was fetched with.
	SeqNum uint32 `json:"-"`
}

// Valid reports whether the message carries the fields every returned
// message must have.
func (m *Message) Valid() bool {
	return strings.TrimSpace(m.MessageID) != "" &&
		strings.TrimSpace(m.From) != "" &&
		strings.TrimSpace(m.Subject) != ""
}

// Attachment represents an email attachment
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     []byte `json:"content"`
}

// Address represents an email address
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SendOptions represents options for sending an email
type SendOptions struct {
	From       Address
	To         []Address
	Cc         []Address
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References []string
}

// Mailbox is one entry of a mailbox listing.
type Mailbox struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}
