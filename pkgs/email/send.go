package email

import (
	"context"
	"log/slog"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/emx-mail/mcp/pkgs/logging"
)

// Sender sends single plain-text messages from one account with best-effort
// semantics.
type Sender struct {
	client *SMTPClient
	from   Address
	logger *slog.Logger
}

// NewSender creates a Sender that submits through config as from.
func NewSender(config SMTPConfig, from Address, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		client: NewSMTPClient(config),
		from:   from,
		logger: logger,
	}
}

// Send submits one message and reports whether the server accepted it. to
// may hold several comma-separated addresses. Failures are logged, never
// returned.
func (s *Sender) Send(ctx context.Context, to, subject, body string) bool {
	recipients, err := ParseRecipients(to)
	if err != nil {
		s.logger.Warn("send rejected", slog.String("reason", "invalid recipient"), logging.Err(err))
		return false
	}

	err = s.client.Send(ctx, SendOptions{
		From:     s.from,
		To:       recipients,
		Subject:  subject,
		TextBody: body,
	})
	if err != nil {
		s.logger.Error("send failed",
			slog.Int("recipients", len(recipients)),
			logging.Err(err),
		)
		return false
	}

	s.logger.Info("message sent", slog.Int("recipients", len(recipients)))
	return true
}

// ParseRecipients parses a comma-separated address list. An empty or
// malformed list is a *ValidationError.
func ParseRecipients(to string) ([]Address, error) {
	if strings.TrimSpace(to) == "" {
		return nil, &ValidationError{Field: "to", Reason: "must not be empty"}
	}
	list, err := mail.ParseAddressList(to)
	if err != nil {
		return nil, &ValidationError{Field: "to", Reason: err.Error()}
	}
	out := make([]Address, 0, len(list))
	for _, a := range list {
		out = append(out, Address{Name: a.Name, Email: a.Address})
	}
	return out, nil
}
