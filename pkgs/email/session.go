package email

import "context"

// StreamKind tells which part of a message a StreamEvent carries.
type StreamKind int

const (
	// StreamHeader carries the header fields named by HeaderFieldNames.
	StreamHeader StreamKind = iota + 1
	// StreamBody carries the full raw message.
	StreamBody
)

func (k StreamKind) String() string {
	switch k {
	case StreamHeader:
		return "header"
	case StreamBody:
		return "body"
	default:
		return "unknown"
	}
}

// StreamEvent is one completed byte stream of one message.
type StreamEvent struct {
	SeqNum uint32
	Kind   StreamKind
	Data   []byte
}

// Session is an authenticated mailbox session. A Session is used by one
// goroutine at a time.
type Session interface {
	// SelectMailbox opens name. With readOnly set, fetching never changes
	// message flags.
	SelectMailbox(ctx context.Context, name string, readOnly bool) error

	// Search returns the sequence numbers matching criteria, in ascending
	// order.
	Search(ctx context.Context, criteria []string) ([]uint32, error)

	// Fetch requests the header and body streams of seqNums and calls fn for
	// every completed stream. Streams of one message, and of different
	// messages, arrive in no guaranteed order. An error returned by fn stops
	// the fetch and is returned.
	Fetch(ctx context.Context, seqNums []uint32, fn func(StreamEvent) error) error

	// ListMailboxes returns every mailbox visible to the account.
	ListMailboxes(ctx context.Context) ([]Mailbox, error)

	// Close ends the session and releases the connection.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}
