package email

import (
	"bytes"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	defaultAttachmentName = "unnamed"
	defaultAttachmentType = "application/octet-stream"
)

// BodyParts is the decoded content of one message.
type BodyParts struct {
	Text        string
	HTML        string
	Attachments []Attachment
}

// DecodeBody decodes a raw RFC 5322 message into its text, HTML and
// attachment parts. Malformed MIME never produces an error: whatever decoded
// before the failure is kept, and a message whose top-level header cannot be
// read decodes to empty parts.
func DecodeBody(raw []byte) BodyParts {
	var parts BodyParts

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return parts
	}
	if entity == nil {
		return parts
	}

	parseEntityBody(&parts, entity)
	return parts
}

// parseEntityBody handles both single-part and multipart entities
// (including nested multipart).
func parseEntityBody(parts *BodyParts, entity *gomessage.Entity) {
	if mr := entity.MultipartReader(); mr != nil {
		parseMultipart(parts, mr)
	} else {
		parseSinglePart(parts, entity)
	}
}

// parseMultipart iterates over parts of a multipart message.
func parseMultipart(parts *BodyParts, mr gomessage.MultipartReader) {
	for {
		part, err := mr.NextPart()
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return
		}
		if part == nil {
			return
		}

		ct, _, _ := part.Header.ContentType()

		switch {
		case isAttachment(part):
			appendAttachment(parts, part, ct)

		case strings.HasPrefix(ct, "multipart/"):
			if nested := part.MultipartReader(); nested != nil {
				parseMultipart(parts, nested)
			}

		case strings.HasPrefix(ct, "text/plain") && parts.Text == "":
			if body, err := io.ReadAll(part.Body); err == nil {
				parts.Text = string(body)
			}

		case strings.HasPrefix(ct, "text/html") && parts.HTML == "":
			if body, err := io.ReadAll(part.Body); err == nil {
				parts.HTML = string(body)
			}

		default:
			appendAttachment(parts, part, ct)
		}
	}
}

// parseSinglePart reads the body of a non-multipart entity.
func parseSinglePart(parts *BodyParts, entity *gomessage.Entity) {
	ct, _, _ := entity.Header.ContentType()

	switch {
	case isAttachment(entity):
		appendAttachment(parts, entity, ct)
	case strings.HasPrefix(ct, "text/html"):
		if body, err := io.ReadAll(entity.Body); err == nil {
			parts.HTML = string(body)
		}
	case entity.Header.Get("Content-Type") == "" || strings.HasPrefix(ct, "text/"):
		if body, err := io.ReadAll(entity.Body); err == nil {
			parts.Text = string(body)
		}
	default:
		appendAttachment(parts, entity, ct)
	}
}

func isAttachment(entity *gomessage.Entity) bool {
	disp, _, err := entity.Header.ContentDisposition()
	return err == nil && strings.EqualFold(disp, "attachment")
}

// appendAttachment adds the entity as an attachment. Entities without
// content are skipped. ct is ignored when the entity carries no
// Content-Type header, since go-message reports text/plain for those.
func appendAttachment(parts *BodyParts, entity *gomessage.Entity, ct string) {
	body, err := io.ReadAll(entity.Body)
	if err != nil || len(body) == 0 {
		return
	}

	h := mail.AttachmentHeader{Header: entity.Header}
	filename, _ := h.Filename()
	if filename == "" {
		filename = defaultAttachmentName
	}
	if entity.Header.Get("Content-Type") == "" {
		ct = defaultAttachmentType
	}

	parts.Attachments = append(parts.Attachments, Attachment{
		Filename:    filename,
		ContentType: ct,
		Size:        int64(len(body)),
		Content:     body,
	})
}
