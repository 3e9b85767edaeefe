package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("with error", Err(errors.New("boom")))
	logger.Info("without error", Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "error=boom")
	assert.NotContains(t, lines[1], "error=")
}

func TestAnonymizeEmail(t *testing.T) {
	assert.Equal(t, "", AnonymizeEmail(""))

	a := AnonymizeEmail("alice@example.com")
	assert.True(t, strings.HasPrefix(a, "user:"))
	assert.NotContains(t, a, "alice")
	assert.Equal(t, a, AnonymizeEmail(" Alice@Example.com "), "hash ignores case and padding")
	assert.NotEqual(t, a, AnonymizeEmail("bob@example.com"))
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alice@example.com", "example.com"},
		{"", ""},
		{"no-at-sign", ""},
		{"a@b@c", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDomain(tt.in), tt.in)
	}
}

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := WithTool(WithOperation(slog.New(slog.NewTextHandler(&buf, nil)), "fetch"), "fetch_emails")
	logger.Info("hello", Mailbox("INBOX"), Status(StatusSuccess))

	out := buf.String()
	assert.Contains(t, out, "operation=fetch")
	assert.Contains(t, out, "tool=fetch_emails")
	assert.Contains(t, out, "mailbox=INBOX")
	assert.Contains(t, out, "status=success")
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, lv, err := New(&buf, "warn", FormatText)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	lv.Set(slog.LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	_, _, err = New(&buf, "verbose", FormatText)
	assert.Error(t, err)
	_, _, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&buf, "", FormatJSON)
	require.NoError(t, err)

	logger.Info("fetched", Mailbox("INBOX"))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), out)
	assert.Contains(t, out, `"mailbox":"INBOX"`)
	assert.Contains(t, out, `"msg":"fetched"`)
}
