package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPClient submits messages over SMTP. It opens one connection per Send.
type SMTPClient struct {
	config SMTPConfig
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool

	InsecureSkipVerify bool
}

// Addr returns host:port.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(config SMTPConfig) *SMTPClient {
	return &SMTPClient{
		config: config,
	}
}

// connect dials and authenticates. The returned client is closed when ctx
// is done.
func (c *SMTPClient) connect(ctx context.Context) (*smtp.Client, func(), error) {
	addr := c.config.Addr()
	tlsCfg := &tls.Config{
		ServerName:         c.config.Host,
		InsecureSkipVerify: c.config.InsecureSkipVerify,
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, &ConnectionError{Addr: addr, Err: err}
	}

	var client *smtp.Client
	if c.config.SSL {
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("TLS handshake: %w", err)}
		}
		client = smtp.NewClient(tlsConn)
	} else if c.config.StartTLS {
		client, err = smtp.NewClientStartTLS(conn, tlsCfg)
		if err != nil {
			conn.Close()
			return nil, nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("STARTTLS: %w", err)}
		}
	} else {
		client = smtp.NewClient(conn)
	}

	stop := context.AfterFunc(ctx, func() { client.Close() })

	// Authenticate
	if c.config.Password != "" {
		auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := client.Auth(auth); err != nil {
			stop()
			client.Close()
			return nil, nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("SMTP authentication failed: %w", err)}
		}
	}

	return client, func() {
		stop()
		client.Close()
	}, nil
}

// Send sends an email
func (c *SMTPClient) Send(ctx context.Context, opts SendOptions) error {
	if len(opts.To) == 0 {
		return &ValidationError{Field: "to", Reason: "at least one recipient is required"}
	}

	// Build before dialling so a bad message never opens a connection.
	msg, err := buildMessage(opts)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	client, closeFn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	recipients := make([]string, 0, len(opts.To)+len(opts.Cc))
	for _, addr := range opts.To {
		recipients = append(recipients, addr.Email)
	}
	for _, addr := range opts.Cc {
		recipients = append(recipients, addr.Email)
	}

	if err := client.SendMail(opts.From.Email, recipients, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("failed to send email: %w", ctxErr)
		}
		return fmt.Errorf("failed to send email: %w", err)
	}
	// The message is accepted at this point; a failed QUIT changes nothing.
	_ = client.Quit()
	return nil
}

// buildMessage builds an email message from SendOptions
func buildMessage(opts SendOptions) (*bytes.Buffer, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(time.Now())
	header.SetSubject(opts.Subject)
	header.SetAddressList("From", []*mail.Address{{
		Name:    opts.From.Name,
		Address: opts.From.Email,
	}})
	header.SetAddressList("To", toMailAddresses(opts.To))
	if len(opts.Cc) > 0 {
		header.SetAddressList("Cc", toMailAddresses(opts.Cc))
	}

	// Handle reply and references
	if opts.InReplyTo != "" {
		header.SetMsgIDList("In-Reply-To", []string{opts.InReplyTo})
	}
	if len(opts.References) > 0 {
		header.SetMsgIDList("References", opts.References)
	}
	header.Set("Message-ID", GenerateMessageID(opts.From.Email))

	if opts.HTMLBody == "" || opts.TextBody == "" {
		// Single part: whichever body is present, plain text by default.
		ct, body := "text/plain", opts.TextBody
		if opts.HTMLBody != "" {
			ct, body = "text/html", opts.HTMLBody
		}
		header.SetContentType(ct, map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, header)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return &buf, nil
	}

	iw, err := mail.CreateInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	for _, part := range []struct{ ct, body string }{
		{"text/plain", opts.TextBody},
		{"text/html", opts.HTMLBody},
	} {
		var h mail.InlineHeader
		h.SetContentType(part.ct, map[string]string{"charset": "utf-8"})
		w, err := iw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return nil, err
		}
		w.Close()
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func toMailAddresses(addrs []Address) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, addr := range addrs {
		out[i] = &mail.Address{Name: addr.Name, Address: addr.Email}
	}
	return out
}

// GenerateMessageID produces a RFC 5322 compliant Message-ID using the
// domain extracted from the sender's email address.
// Format: <timestamp.uuid@domain>
func GenerateMessageID(fromEmail string) string {
	domain := "localhost"
	if idx := strings.LastIndex(fromEmail, "@"); idx >= 0 && idx < len(fromEmail)-1 {
		domain = fromEmail[idx+1:]
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), uuid.NewString(), domain)
}
