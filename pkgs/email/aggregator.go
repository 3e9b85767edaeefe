package email

import (
	"fmt"
	"sync"
)

// State is the assembly state of one in-flight message.
type State int

const (
	// StatePending means no stream of the message has completed.
	StatePending State = iota
	// StatePartiallyComplete means exactly one of header and body completed.
	StatePartiallyComplete
	// StateComplete means both streams completed and validation is due.
	StateComplete
	// StateFinalized means the message passed validation and is part of the
	// output.
	StateFinalized
	// StateDiscarded means the message failed validation or never completed.
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePartiallyComplete:
		return "partially_complete"
	case StateComplete:
		return "complete"
	case StateFinalized:
		return "finalized"
	case StateDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// terminal reports whether no further stream can change the entry.
func (s State) terminal() bool {
	return s == StateFinalized || s == StateDiscarded
}

type inFlightMessage struct {
	seqNum uint32
	slot   int
	state  State

	header     HeaderFields
	body       BodyParts
	haveHeader bool
	haveBody   bool
}

// Aggregator correlates the header and body streams of the messages of one
// fetch and emits a Message per entry once both have arrived. Results keep
// the dispatch order the Aggregator was created with, whatever order the
// streams arrive in.
//
// An Aggregator belongs to a single fetch. It is safe for concurrent use by
// that fetch's decode workers.
type Aggregator struct {
	mu        sync.Mutex
	entries   map[uint32]*inFlightMessage
	slots     []*Message
	discarded int
}

// NewAggregator registers one pending entry per sequence number. The order of
// seqNums is the order of the final output.
func NewAggregator(seqNums []uint32) *Aggregator {
	a := &Aggregator{
		entries: make(map[uint32]*inFlightMessage, len(seqNums)),
		slots:   make([]*Message, len(seqNums)),
	}
	for i, seq := range seqNums {
		if _, dup := a.entries[seq]; dup {
			continue
		}
		a.entries[seq] = &inFlightMessage{seqNum: seq, slot: i}
	}
	return a
}

// AddHeader records the decoded header stream of seq. A second header for
// the same message is ignored.
func (a *Aggregator) AddHeader(seq uint32, h HeaderFields) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.entries[seq]
	if !ok {
		return fmt.Errorf("header for %d: %w", seq, ErrUnknownSequence)
	}
	if m.haveHeader || m.state.terminal() {
		return nil
	}
	m.header = h
	m.haveHeader = true
	a.advance(m)
	return nil
}

// AddBody records the decoded body stream of seq. A second body for the
// same message is ignored.
func (a *Aggregator) AddBody(seq uint32, b BodyParts) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.entries[seq]
	if !ok {
		return fmt.Errorf("body for %d: %w", seq, ErrUnknownSequence)
	}
	if m.haveBody || m.state.terminal() {
		return nil
	}
	m.body = b
	m.haveBody = true
	a.advance(m)
	return nil
}

// advance moves m along the state machine. Callers hold a.mu.
func (a *Aggregator) advance(m *inFlightMessage) {
	switch {
	case m.haveHeader && m.haveBody:
		m.state = StateComplete
	case m.haveHeader || m.haveBody:
		m.state = StatePartiallyComplete
		return
	default:
		return
	}

	msg := &Message{
		MessageID:   m.header.MessageID,
		From:        m.header.From,
		To:          m.header.To,
		Subject:     m.header.Subject,
		Date:        m.header.Date,
		Text:        m.body.Text,
		HTML:        m.body.HTML,
		Attachments: m.body.Attachments,
		SeqNum:      m.seqNum,
	}
	if msg.Attachments == nil {
		msg.Attachments = []Attachment{}
	}

	if !msg.Valid() {
		m.state = StateDiscarded
		a.discarded++
		a.release(m)
		return
	}

	a.slots[m.slot] = msg
	m.state = StateFinalized
	a.release(m)
}

// release drops the partial data of a terminal entry.
func (a *Aggregator) release(m *inFlightMessage) {
	m.header = HeaderFields{}
	m.body = BodyParts{}
}

// State returns the current state of seq.
func (a *Aggregator) State(seq uint32) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.entries[seq]
	if !ok {
		return 0, false
	}
	return m.state, true
}

// Discarded returns the number of entries discarded so far.
func (a *Aggregator) Discarded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discarded
}

// Finish discards every entry that has not reached a terminal state and
// returns the finalized messages in dispatch order. It is called once the
// fetch stream has ended.
func (a *Aggregator) Finish() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range a.entries {
		if !m.state.terminal() {
			m.state = StateDiscarded
			a.discarded++
			a.release(m)
		}
	}

	out := make([]Message, 0, len(a.slots))
	for _, msg := range a.slots {
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}
