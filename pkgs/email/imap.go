package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/emx-mail/mcp/pkgs/logging"
)

// IMAPConfig holds IMAP configuration
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool

	// InsecureSkipVerify disables certificate verification. Only meant for
	// servers with self-signed certificates.
	InsecureSkipVerify bool
}

// Addr returns host:port.
func (c IMAPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IMAPDialer opens authenticated IMAP sessions.
type IMAPDialer struct {
	config IMAPConfig
	logger *slog.Logger
}

// NewIMAPDialer creates a dialer for config.
func NewIMAPDialer(config IMAPConfig, logger *slog.Logger) *IMAPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPDialer{config: config, logger: logger}
}

// Dial connects and logs in. Every failure is a *ConnectionError.
func (d *IMAPDialer) Dial(ctx context.Context) (Session, error) {
	addr := d.config.Addr()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	tlsCfg := &tls.Config{
		ServerName:         d.config.Host,
		InsecureSkipVerify: d.config.InsecureSkipVerify,
	}
	options := &imapclient.Options{TLSConfig: tlsCfg}

	var client *imapclient.Client
	if d.config.SSL {
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("TLS handshake: %w", err)}
		}
		client = imapclient.New(tlsConn, options)
	} else if d.config.StartTLS {
		client, err = imapclient.NewStartTLS(conn, options)
		if err != nil {
			conn.Close()
			return nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("STARTTLS: %w", err)}
		}
	} else {
		client = imapclient.New(conn, options)
	}

	s := &imapSession{client: client, addr: addr, logger: d.logger}

	err = s.run(ctx, func() error {
		return client.Login(d.config.Username, d.config.Password).Wait()
	})
	if err != nil {
		client.Close()
		return nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("IMAP authentication failed: %w", err)}
	}

	d.logger.Debug("imap session opened", slog.String("addr", addr), logging.UserHash(d.config.Username))
	return s, nil
}

type imapSession struct {
	client *imapclient.Client
	addr   string
	logger *slog.Logger

	// aborted is set once the connection was torn down by a cancelled context.
	aborted atomic.Bool
}

// run executes op and closes the connection as soon as ctx is done, which
// unblocks any pending command. A cancelled run reports ctx.Err().
func (s *imapSession) run(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		s.aborted.Store(true)
		s.client.Close()
	})
	err := op()
	stop()
	if ctxErr := ctx.Err(); ctxErr != nil && s.aborted.Load() {
		return ctxErr
	}
	return err
}

func (s *imapSession) SelectMailbox(ctx context.Context, name string, readOnly bool) error {
	return s.run(ctx, func() error {
		_, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
		if err != nil {
			return fmt.Errorf("failed to select folder %s: %w", name, err)
		}
		return nil
	})
}

func (s *imapSession) Search(ctx context.Context, criteria []string) ([]uint32, error) {
	sc, err := buildSearchCriteria(criteria)
	if err != nil {
		return nil, err
	}

	var nums []uint32
	err = s.run(ctx, func() error {
		data, err := s.client.Search(sc, nil).Wait()
		if err != nil {
			return err
		}
		nums = data.AllSeqNums()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(nums)
	return nums, nil
}

func (s *imapSession) Fetch(ctx context.Context, seqNums []uint32, fn func(StreamEvent) error) error {
	if len(seqNums) == 0 {
		return nil
	}

	headerSection := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: HeaderFieldNames,
		Peek:         true,
	}
	bodySection := &imap.FetchItemBodySection{
		Peek: true, // don't mark as read
	}
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{headerSection, bodySection},
	}

	return s.run(ctx, func() error {
		cmd := s.client.Fetch(imap.SeqSetNum(seqNums...), fetchOptions)
		for {
			msg := cmd.Next()
			if msg == nil {
				break
			}
			for {
				item := msg.Next()
				if item == nil {
					break
				}
				section, ok := item.(imapclient.FetchItemDataBodySection)
				if !ok || section.Literal == nil {
					continue
				}
				// The literal must be consumed before the next item.
				data, err := io.ReadAll(section.Literal)
				if err != nil {
					cmd.Close()
					return fmt.Errorf("failed to read message %d: %w", msg.SeqNum, err)
				}

				kind := StreamBody
				if section.Section != nil && section.Section.Specifier == imap.PartSpecifierHeader {
					kind = StreamHeader
				}
				if err := fn(StreamEvent{SeqNum: msg.SeqNum, Kind: kind, Data: data}); err != nil {
					cmd.Close()
					return err
				}
			}
		}
		return cmd.Close()
	})
}

func (s *imapSession) ListMailboxes(ctx context.Context) ([]Mailbox, error) {
	var list []*imap.ListData
	err := s.run(ctx, func() error {
		var err error
		list, err = s.client.List("", "*", nil).Collect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	mailboxes := make([]Mailbox, 0, len(list))
	for _, mb := range list {
		m := Mailbox{Name: mb.Mailbox}
		if mb.Delim != 0 {
			m.Delimiter = string(mb.Delim)
		}
		for _, attr := range mb.Attrs {
			m.Attributes = append(m.Attributes, string(attr))
		}
		mailboxes = append(mailboxes, m)
	}
	return mailboxes, nil
}

func (s *imapSession) Close() error {
	if !s.aborted.Load() {
		if err := s.client.Logout().Wait(); err != nil {
			s.logger.Debug("imap logout failed", slog.String("addr", s.addr), logging.Err(err))
		}
	}
	return s.client.Close()
}

var headerSearchKeys = map[string]string{
	"SUBJECT": "Subject",
	"FROM":    "From",
	"TO":      "To",
	"CC":      "Cc",
	"BCC":     "Bcc",
}

var flagSearchKeys = map[string]imap.Flag{
	"SEEN":     imap.FlagSeen,
	"FLAGGED":  imap.FlagFlagged,
	"ANSWERED": imap.FlagAnswered,
	"DELETED":  imap.FlagDeleted,
	"DRAFT":    imap.FlagDraft,
}

// buildSearchCriteria translates flat IMAP search terms, such as
// ["UNSEEN", "FROM", "alice"], into go-imap criteria. All terms must match.
func buildSearchCriteria(terms []string) (*imap.SearchCriteria, error) {
	criteria := &imap.SearchCriteria{}

	for i := 0; i < len(terms); i++ {
		key := strings.ToUpper(strings.TrimSpace(terms[i]))

		next := func() (string, error) {
			if i+1 >= len(terms) {
				return "", fmt.Errorf("search key %s requires an argument", key)
			}
			i++
			return terms[i], nil
		}

		if field, ok := headerSearchKeys[key]; ok {
			v, err := next()
			if err != nil {
				return nil, err
			}
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: field, Value: v})
			continue
		}
		if flag, ok := flagSearchKeys[key]; ok {
			criteria.Flag = append(criteria.Flag, flag)
			continue
		}
		if flag, ok := flagSearchKeys[strings.TrimPrefix(key, "UN")]; ok && strings.HasPrefix(key, "UN") {
			criteria.NotFlag = append(criteria.NotFlag, flag)
			continue
		}

		switch key {
		case "ALL", "":
		case "HEADER":
			k, err := next()
			if err != nil {
				return nil, err
			}
			v, err := next()
			if err != nil {
				return nil, err
			}
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: k, Value: v})
		case "BODY", "TEXT":
			v, err := next()
			if err != nil {
				return nil, err
			}
			if key == "BODY" {
				criteria.Body = append(criteria.Body, v)
			} else {
				criteria.Text = append(criteria.Text, v)
			}
		case "SINCE", "BEFORE", "ON":
			v, err := next()
			if err != nil {
				return nil, err
			}
			t, err := parseSearchDate(v)
			if err != nil {
				return nil, err
			}
			// Repeated date keys narrow the range.
			switch key {
			case "SINCE":
				criteria.Since = laterOf(criteria.Since, t)
			case "BEFORE":
				criteria.Before = earlierOf(criteria.Before, t)
			default:
				criteria.Since = laterOf(criteria.Since, t)
				criteria.Before = earlierOf(criteria.Before, t.AddDate(0, 0, 1))
			}
		case "LARGER", "SMALLER":
			v, err := next()
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("search key %s: invalid size %q", key, v)
			}
			if key == "LARGER" {
				criteria.Larger = n
			} else {
				criteria.Smaller = n
			}
		default:
			return nil, fmt.Errorf("unsupported search key %q", terms[i])
		}
	}

	return criteria, nil
}

func laterOf(cur, t time.Time) time.Time {
	if cur.IsZero() || t.After(cur) {
		return t
	}
	return cur
}

func earlierOf(cur, t time.Time) time.Time {
	if cur.IsZero() || t.Before(cur) {
		return t
	}
	return cur
}

func parseSearchDate(v string) (time.Time, error) {
	for _, layout := range []string{"2-Jan-2006", "02-Jan-2006", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid search date %q", v)
}
