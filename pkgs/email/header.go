package email

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// HeaderFieldNames are the header fields requested for every message.
var HeaderFieldNames = []string{"From", "To", "Subject", "Date", "Message-ID"}

// HeaderFields holds the normalized header values of one message.
type HeaderFields struct {
	MessageID string
	From      string
	To        string
	Subject   string
	Date      time.Time
}

// DecodeHeader parses a raw header block. It never fails: a field that is
// missing or cannot be decoded yields an empty string, and a missing or
// unparsable Date yields received.
func DecodeHeader(raw []byte, received time.Time) HeaderFields {
	// ReadHeader returns whatever it parsed alongside the error.
	th, _ := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(dropMalformedLines(raw))))
	h := mail.Header{Header: gomessage.Header{Header: th}}

	fields := HeaderFields{
		MessageID: strings.TrimSpace(h.Get("Message-Id")),
		From:      headerText(&h, "From"),
		To:        headerText(&h, "To"),
		Subject:   headerText(&h, "Subject"),
		Date:      received,
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		fields.Date = date
	}
	return fields
}

// dropMalformedLines removes header lines without a colon, along with their
// continuation lines. ReadHeader stops at the first such line, which would
// lose every field after it.
func dropMalformedLines(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	keep := false
	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		content := bytes.TrimRight(line, "\r\n")
		if len(content) == 0 {
			// End of the header block.
			for _, rest := range lines[i:] {
				out = append(out, rest...)
			}
			return out
		}
		if content[0] == ' ' || content[0] == '\t' {
			if keep {
				out = append(out, line...)
			}
			continue
		}
		keep = bytes.IndexByte(content, ':') > 0
		if keep {
			out = append(out, line...)
		}
	}
	return out
}

// headerText decodes RFC 2047 encoded words, keeping the raw value when
// decoding fails.
func headerText(h *mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		v = h.Get(key)
	}
	return strings.TrimSpace(v)
}
