package email

import "strings"

const (
	// DefaultLimit is the number of messages fetched when no limit is given.
	DefaultLimit = 10
	// DefaultMailbox is the mailbox searched when none is given.
	DefaultMailbox = "INBOX"
)

// FetchQuery describes one fetch: which mailbox, which search terms and how
// many of the newest matches to return. Build it with NewFetchQuery or one
// of the intent helpers; the zero value is not normalized.
type FetchQuery struct {
	Limit    int
	Mailbox  string
	Criteria []string
}

// NewFetchQuery normalizes its arguments: a non-positive limit becomes
// DefaultLimit, an empty mailbox DefaultMailbox and empty criteria match
// every message. criteria is copied.
func NewFetchQuery(limit int, mailbox string, criteria []string) FetchQuery {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if strings.TrimSpace(mailbox) == "" {
		mailbox = DefaultMailbox
	}
	terms := make([]string, 0, len(criteria))
	for _, c := range criteria {
		if c != "" {
			terms = append(terms, c)
		}
	}
	if len(terms) == 0 {
		terms = []string{"ALL"}
	}
	return FetchQuery{Limit: limit, Mailbox: mailbox, Criteria: terms}
}

// MatchAll selects the newest messages of the inbox.
func MatchAll(limit int) FetchQuery {
	return NewFetchQuery(limit, DefaultMailbox, nil)
}

// BySubject selects inbox messages whose subject contains subject.
func BySubject(subject string, limit int) (FetchQuery, error) {
	if strings.TrimSpace(subject) == "" {
		return FetchQuery{}, &ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	return NewFetchQuery(limit, DefaultMailbox, []string{"SUBJECT", subject}), nil
}

// BySender selects inbox messages whose From header contains sender.
func BySender(sender string, limit int) (FetchQuery, error) {
	if strings.TrimSpace(sender) == "" {
		return FetchQuery{}, &ValidationError{Field: "sender", Reason: "must not be empty"}
	}
	return NewFetchQuery(limit, DefaultMailbox, []string{"FROM", sender}), nil
}

// Unread selects inbox messages without the \Seen flag.
func Unread(limit int) FetchQuery {
	return NewFetchQuery(limit, DefaultMailbox, []string{"UNSEEN"})
}

// Raw passes criteria through as given. Terms are checked by the session when
// the search runs.
func Raw(criteria []string, mailbox string, limit int) FetchQuery {
	return NewFetchQuery(limit, mailbox, criteria)
}

// withDefaults normalizes a query that was built by hand.
func (q FetchQuery) withDefaults() FetchQuery {
	return NewFetchQuery(q.Limit, q.Mailbox, q.Criteria)
}
