package email

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func validHeader(n int) HeaderFields {
	return HeaderFields{
		MessageID: "<id-" + string(rune('a'+n)) + "@example.com>",
		From:      "sender@example.com",
		Subject:   "subject",
		Date:      time.Date(2026, 2, 9, 8, n, 0, 0, time.UTC),
	}
}

func TestAggregator_StateMachine(t *testing.T) {
	agg := NewAggregator([]uint32{7})

	assertState := func(want State) {
		t.Helper()
		got, ok := agg.State(7)
		if !ok {
			t.Fatal("entry 7 missing")
		}
		if got != want {
			t.Errorf("state = %s, want %s", got, want)
		}
	}

	assertState(StatePending)

	if err := agg.AddBody(7, BodyParts{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	assertState(StatePartiallyComplete)

	if err := agg.AddHeader(7, validHeader(0)); err != nil {
		t.Fatal(err)
	}
	assertState(StateFinalized)

	msgs := agg.Finish()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "hi" || msgs[0].SeqNum != 7 {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
	if msgs[0].Attachments == nil {
		t.Error("attachments should be an empty slice, not nil")
	}
}

func TestAggregator_DispatchOrder(t *testing.T) {
	seqs := []uint32{5, 4, 3}
	agg := NewAggregator(seqs)

	// Arrival order differs from dispatch order.
	steps := []func() error{
		func() error { return agg.AddBody(3, BodyParts{}) },
		func() error { return agg.AddHeader(5, validHeader(5)) },
		func() error { return agg.AddHeader(3, validHeader(3)) },
		func() error { return agg.AddBody(4, BodyParts{}) },
		func() error { return agg.AddBody(5, BodyParts{}) },
		func() error { return agg.AddHeader(4, validHeader(4)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}

	msgs := agg.Finish()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range seqs {
		if msgs[i].SeqNum != want {
			t.Errorf("msgs[%d].SeqNum = %d, want %d", i, msgs[i].SeqNum, want)
		}
	}
}

func TestAggregator_DiscardsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		header HeaderFields
	}{
		{"no message id", HeaderFields{From: "a@example.com", Subject: "s"}},
		{"no sender", HeaderFields{MessageID: "<x@y>", Subject: "s"}},
		{"no subject", HeaderFields{MessageID: "<x@y>", From: "a@example.com"}},
		{"blank subject", HeaderFields{MessageID: "<x@y>", From: "a@example.com", Subject: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator([]uint32{1})
			_ = agg.AddHeader(1, tt.header)
			_ = agg.AddBody(1, BodyParts{Text: "body"})

			if st, _ := agg.State(1); st != StateDiscarded {
				t.Errorf("state = %s, want discarded", st)
			}
			if msgs := agg.Finish(); len(msgs) != 0 {
				t.Errorf("expected no messages, got %+v", msgs)
			}
			if agg.Discarded() != 1 {
				t.Errorf("Discarded() = %d, want 1", agg.Discarded())
			}
		})
	}
}

func TestAggregator_FinishDiscardsIncomplete(t *testing.T) {
	agg := NewAggregator([]uint32{1, 2, 3})
	_ = agg.AddHeader(1, validHeader(1))
	_ = agg.AddBody(1, BodyParts{})
	_ = agg.AddHeader(2, validHeader(2)) // body never arrives

	msgs := agg.Finish()
	if len(msgs) != 1 || msgs[0].SeqNum != 1 {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	for _, seq := range []uint32{2, 3} {
		if st, _ := agg.State(seq); st != StateDiscarded {
			t.Errorf("state of %d = %s, want discarded", seq, st)
		}
	}
	if agg.Discarded() != 2 {
		t.Errorf("Discarded() = %d, want 2", agg.Discarded())
	}
}

func TestAggregator_UnknownSequence(t *testing.T) {
	agg := NewAggregator([]uint32{1})
	if err := agg.AddHeader(99, validHeader(0)); !errors.Is(err, ErrUnknownSequence) {
		t.Errorf("AddHeader: expected ErrUnknownSequence, got %v", err)
	}
	if err := agg.AddBody(99, BodyParts{}); !errors.Is(err, ErrUnknownSequence) {
		t.Errorf("AddBody: expected ErrUnknownSequence, got %v", err)
	}
	if _, ok := agg.State(99); ok {
		t.Error("State reported an unknown sequence number")
	}
}

func TestAggregator_DuplicateStreamKeepsFirst(t *testing.T) {
	agg := NewAggregator([]uint32{1})
	_ = agg.AddBody(1, BodyParts{Text: "first"})
	_ = agg.AddBody(1, BodyParts{Text: "second"})
	_ = agg.AddHeader(1, validHeader(1))
	_ = agg.AddHeader(1, HeaderFields{})

	msgs := agg.Finish()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "first" {
		t.Errorf("unexpected Text: %q", msgs[0].Text)
	}
}

func TestAggregator_Concurrent(t *testing.T) {
	const n = 50
	seqs := make([]uint32, n)
	for i := range seqs {
		seqs[i] = uint32(n - i)
	}
	agg := NewAggregator(seqs)

	var wg sync.WaitGroup
	for _, seq := range seqs {
		wg.Add(2)
		go func(seq uint32) {
			defer wg.Done()
			_ = agg.AddHeader(seq, validHeader(int(seq%20)))
		}(seq)
		go func(seq uint32) {
			defer wg.Done()
			_ = agg.AddBody(seq, BodyParts{})
		}(seq)
	}
	wg.Wait()

	msgs := agg.Finish()
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}
	for i := range msgs {
		if msgs[i].SeqNum != seqs[i] {
			t.Fatalf("msgs[%d].SeqNum = %d, want %d", i, msgs[i].SeqNum, seqs[i])
		}
	}
}
