package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// ---------------------------------------------------------------------------
// SMTP mock server
// ---------------------------------------------------------------------------

type smtpTestMessage struct {
	From string
	To   []string
	Data []byte
}

type smtpTestBackend struct {
	mu       sync.Mutex
	messages []*smtpTestMessage

	// rejectRcpt makes every RCPT TO fail with a permanent error.
	rejectRcpt bool
}

func (be *smtpTestBackend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &smtpTestSession{backend: be}, nil
}

func (be *smtpTestBackend) Messages() []*smtpTestMessage {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]*smtpTestMessage(nil), be.messages...)
}

type smtpTestSession struct {
	backend *smtpTestBackend
	msg     *smtpTestMessage
}

func (s *smtpTestSession) AuthMechanisms() []string { return []string{"PLAIN"} }

func (s *smtpTestSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != "testuser" || password != "testpass" {
			return errors.New("invalid credentials")
		}
		return nil
	}), nil
}

func (s *smtpTestSession) Mail(from string, _ *gosmtp.MailOptions) error {
	s.msg = &smtpTestMessage{From: from}
	return nil
}

func (s *smtpTestSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.backend.rejectRcpt {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "mailbox unavailable",
		}
	}
	s.msg.To = append(s.msg.To, to)
	return nil
}

func (s *smtpTestSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.Data = b
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.msg)
	s.backend.mu.Unlock()
	return nil
}

func (s *smtpTestSession) Reset()        { s.msg = nil }
func (s *smtpTestSession) Logout() error { return nil }

// Ensure interface conformance
var _ gosmtp.AuthSession = (*smtpTestSession)(nil)

// newTestSMTPServer starts a mock SMTP server. Returns the backend (to
// inspect received mail) and the listen address.
func newTestSMTPServer(t *testing.T) (*smtpTestBackend, string) {
	t.Helper()

	be := &smtpTestBackend{}
	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return be, ln.Addr().String()
}

func testSMTPConfig(t *testing.T, addr string) SMTPConfig {
	t.Helper()
	host, port := splitHostPort(t, addr)
	return SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "testuser",
		Password: "testpass",
	}
}

// ---------------------------------------------------------------------------
// SMTPClient
// ---------------------------------------------------------------------------

func TestSMTPSend_PlainText(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From:     Address{Name: "Sender", Email: "sender@example.com"},
		To:       []Address{{Name: "Recipient", Email: "rcpt@example.com"}},
		Subject:  "Test Subject",
		TextBody: "Hello, World!",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	msgs := be.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].From != "sender@example.com" {
		t.Errorf("unexpected From: %s", msgs[0].From)
	}
	if len(msgs[0].To) != 1 || msgs[0].To[0] != "rcpt@example.com" {
		t.Errorf("unexpected To: %v", msgs[0].To)
	}
	data := string(msgs[0].Data)
	if !strings.Contains(data, "Test Subject") {
		t.Error("subject not found in message data")
	}
	if !strings.Contains(data, "text/plain") || strings.Contains(data, "multipart") {
		t.Error("expected a single text/plain part")
	}
}

func TestSMTPSend_HTMLBody(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "HTML",
		HTMLBody: "<p>Hello</p>",
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := be.Messages()
	if !strings.Contains(string(msgs[0].Data), "text/html") {
		t.Error("expected text/html in message data")
	}
}

func TestSMTPSend_Alternative(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "Both",
		TextBody: "plain",
		HTMLBody: "<b>rich</b>",
	})
	if err != nil {
		t.Fatal(err)
	}

	// The sent message must decode back into both bodies.
	parts := DecodeBody(be.Messages()[0].Data)
	if parts.Text != "plain" || parts.HTML != "<b>rich</b>" {
		t.Errorf("unexpected bodies: %q / %q", parts.Text, parts.HTML)
	}
}

func TestSMTPSend_MultipleRecipients(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From: Address{Email: "sender@example.com"},
		To: []Address{
			{Email: "to1@example.com"},
			{Email: "to2@example.com"},
		},
		Cc:       []Address{{Email: "cc@example.com"}},
		Subject:  "Multi",
		TextBody: "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := be.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	// RCPT TO covers To and Cc.
	if len(msgs[0].To) != 3 {
		t.Errorf("expected 3 RCPT TO, got %d: %v", len(msgs[0].To), msgs[0].To)
	}
}

func TestSMTPSend_NoRecipients(t *testing.T) {
	client := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: 1})
	err := client.Send(context.Background(), SendOptions{
		From:    Address{Email: "sender@example.com"},
		Subject: "nobody",
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSMTPSend_BadAuth(t *testing.T) {
	_, addr := newTestSMTPServer(t)
	cfg := testSMTPConfig(t, addr)
	cfg.Username, cfg.Password = "wrong", "wrong"

	err := NewSMTPClient(cfg).Send(context.Background(), SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "fail",
		TextBody: "should fail",
	})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestSMTPSend_Rejected(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	be.rejectRcpt = true

	err := NewSMTPClient(testSMTPConfig(t, addr)).Send(context.Background(), SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "nobody@example.com"}},
		Subject:  "rejected",
		TextBody: "x",
	})
	var smtpErr *gosmtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Errorf("expected SMTP 550, got %v", err)
	}
	if len(be.Messages()) != 0 {
		t.Error("rejected message must not be stored")
	}
}

func TestSMTPSend_Cancelled(t *testing.T) {
	_, addr := newTestSMTPServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSMTPClient(testSMTPConfig(t, addr)).Send(ctx, SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "late",
		TextBody: "x",
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSMTPSend_MessageIDPresent(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "MID Test",
		TextBody: "check message-id",
	})
	if err != nil {
		t.Fatal(err)
	}

	data := string(be.Messages()[0].Data)
	if !strings.Contains(data, "Message-Id: <") {
		t.Error("Message-Id header not found in sent message")
	}
	if !strings.Contains(data, "@example.com>") {
		t.Error("Message-Id does not contain sender domain")
	}
}

func TestSMTPSend_Reply(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := NewSMTPClient(testSMTPConfig(t, addr))

	err := client.Send(context.Background(), SendOptions{
		From:       Address{Email: "sender@example.com"},
		To:         []Address{{Email: "rcpt@example.com"}},
		Subject:    "Re: Original",
		TextBody:   "reply body",
		InReplyTo:  "<original@example.com>",
		References: []string{"<original@example.com>"},
	})
	if err != nil {
		t.Fatal(err)
	}

	data := string(be.Messages()[0].Data)
	if !strings.Contains(data, "In-Reply-To") {
		t.Error("In-Reply-To header not found")
	}
	if !strings.Contains(data, "References") {
		t.Error("References header not found")
	}
}

func TestSMTPGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("user@example.com")

	if id == "" {
		t.Fatal("empty message ID")
	}
	if id[0] != '<' || id[len(id)-1] != '>' {
		t.Errorf("missing angle brackets: %s", id)
	}
	if !strings.Contains(id, "@example.com") {
		t.Errorf("missing domain: %s", id)
	}
}

func TestSMTPGenerateMessageID_DifferentDomains(t *testing.T) {
	tests := []struct {
		email  string
		domain string
	}{
		{"user@gmail.com", "@gmail.com"},
		{"admin@corp.co.uk", "@corp.co.uk"},
		{"nodomain", "@localhost"},
	}

	for _, tc := range tests {
		id := GenerateMessageID(tc.email)
		if !strings.Contains(id, tc.domain) {
			t.Errorf("GenerateMessageID(%q) = %q, want domain %q", tc.email, id, tc.domain)
		}
	}
}

func TestSMTPGenerateMessageID_Uniqueness(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := GenerateMessageID("user@example.com")
		if _, dup := ids[id]; dup {
			t.Fatalf("duplicate ID: %s", id)
		}
		ids[id] = struct{}{}
	}
}

// ---------------------------------------------------------------------------
// Sender
// ---------------------------------------------------------------------------

func newTestSender(t *testing.T, addr string) (*Sender, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSender(testSMTPConfig(t, addr), Address{Email: "me@example.com"}, logger), &logs
}

func TestSender_Success(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	sender, _ := newTestSender(t, addr)

	if !sender.Send(context.Background(), "a@example.com, B <b@example.com>", "hello", "body text") {
		t.Fatal("Send() = false, want true")
	}

	msgs := be.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].From != "me@example.com" {
		t.Errorf("unexpected From: %s", msgs[0].From)
	}
	if len(msgs[0].To) != 2 {
		t.Errorf("expected 2 recipients, got %v", msgs[0].To)
	}
	if parts := DecodeBody(msgs[0].Data); strings.TrimRight(parts.Text, "\r\n") != "body text" {
		t.Errorf("unexpected body: %q", parts.Text)
	}
}

func TestSender_Rejected(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	be.rejectRcpt = true
	sender, logs := newTestSender(t, addr)

	if sender.Send(context.Background(), "nobody@example.com", "s", "b") {
		t.Fatal("Send() = true, want false")
	}
	if !strings.Contains(logs.String(), "send failed") {
		t.Errorf("failure was not logged: %s", logs.String())
	}
}

func TestSender_InvalidRecipient(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	sender, logs := newTestSender(t, addr)

	for _, to := range []string{"", "   ", "not an address"} {
		if sender.Send(context.Background(), to, "s", "b") {
			t.Errorf("Send(%q) = true, want false", to)
		}
	}
	if len(be.Messages()) != 0 {
		t.Error("nothing should be sent for invalid recipients")
	}
	if !strings.Contains(logs.String(), "invalid recipient") {
		t.Errorf("rejection was not logged: %s", logs.String())
	}
}

func TestSender_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	sender, _ := newTestSender(t, addr)
	if sender.Send(context.Background(), "a@example.com", "s", "b") {
		t.Fatal("Send() = true, want false")
	}
}
