package email

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is matched by every *ValidationError.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("mail server connection failed")
	// ErrSearch is matched by every *SearchError.
	ErrSearch = errors.New("mailbox search failed")
	// ErrFetchStream is matched by every *FetchStreamError.
	ErrFetchStream = errors.New("fetch stream failed")
	// ErrUnknownSequence is returned by the Aggregator for a sequence number
	// it was not created with.
	ErrUnknownSequence = errors.New("unknown sequence number")
)

// ValidationError reports a caller-supplied argument that is empty or
// otherwise unusable. It is raised before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid argument %q", e.Field)
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

// ConnectionError reports a failure to open or authenticate a session.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// SearchError reports a protocol failure while selecting or searching a
// mailbox.
type SearchError struct {
	Mailbox string
	Err     error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search in %s failed: %v", e.Mailbox, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

func (e *SearchError) Is(target error) bool { return target == ErrSearch }

// FetchStreamError reports a failure of the fetch stream as a whole. Decode
// problems of single messages never produce one.
type FetchStreamError struct {
	Err error
}

func (e *FetchStreamError) Error() string {
	return fmt.Sprintf("fetch stream failed: %v", e.Err)
}

func (e *FetchStreamError) Unwrap() error { return e.Err }

func (e *FetchStreamError) Is(target error) bool { return target == ErrFetchStream }
