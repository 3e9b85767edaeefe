package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emx-mail/mcp/pkgs/logging"
)

// DefaultDecodeWorkers bounds the number of streams decoded at once.
const DefaultDecodeWorkers = 4

// Fetcher drives one mailbox session per call: select, search, fetch, decode
// and assemble.
type Fetcher struct {
	dialer  Dialer
	workers int
	logger  *slog.Logger
	now     func() time.Time
	stats   func(context.Context, FetchStats)
}

// FetchStats summarizes one Fetch call.
type FetchStats struct {
	Mailbox   string
	Selected  int
	Returned  int
	Discarded int
	Duration  time.Duration
	Err       error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithDecodeWorkers sets how many streams are decoded concurrently.
func WithDecodeWorkers(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock sets the time source used as the receipt time of messages.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// WithStatsHook registers fn to be called once at the end of every Fetch.
func WithStatsHook(fn func(context.Context, FetchStats)) FetcherOption {
	return func(f *Fetcher) {
		f.stats = fn
	}
}

// NewFetcher creates a Fetcher that opens its sessions with dialer.
func NewFetcher(dialer Dialer, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		dialer:  dialer,
		workers: DefaultDecodeWorkers,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the newest query.Limit messages of query.Mailbox matching
// query.Criteria, newest first. It returns either the whole batch or an
// error; nothing partial is returned. Messages lacking a Message-ID, sender
// or subject are left out.
func (f *Fetcher) Fetch(ctx context.Context, query FetchQuery) ([]Message, error) {
	query = query.withDefaults()
	stats := FetchStats{Mailbox: query.Mailbox}
	start := time.Now()

	messages, err := f.fetch(ctx, query, &stats)

	if f.stats != nil {
		stats.Returned = len(messages)
		stats.Duration = time.Since(start)
		stats.Err = err
		f.stats(ctx, stats)
	}
	return messages, err
}

func (f *Fetcher) fetch(ctx context.Context, query FetchQuery, stats *FetchStats) ([]Message, error) {
	logger := f.logger.With(logging.FetchID(uuid.NewString()), logging.Mailbox(query.Mailbox))

	session, err := f.dialer.Dial(ctx)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Err: err}
		}
		return nil, wrapStage(ctx, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("session close failed", logging.Err(err))
		}
	}()

	if err := session.SelectMailbox(ctx, query.Mailbox, true); err != nil {
		return nil, wrapStage(ctx, &SearchError{Mailbox: query.Mailbox, Err: err})
	}

	found, err := session.Search(ctx, query.Criteria)
	if err != nil {
		return nil, wrapStage(ctx, &SearchError{Mailbox: query.Mailbox, Err: err})
	}
	if len(found) == 0 {
		logger.Debug("search returned no messages")
		return []Message{}, nil
	}

	selected := selectNewest(found, query.Limit)
	stats.Selected = len(selected)
	received := f.now()
	agg := NewAggregator(selected)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	streamErr := session.Fetch(ctx, selected, func(ev StreamEvent) error {
		if gctx.Err() != nil {
			return gctx.Err()
		}
		g.Go(func() error {
			f.dispatch(logger, agg, ev, received)
			return nil
		})
		return nil
	})
	// Decode workers never fail; Wait only drains them.
	_ = g.Wait()

	if streamErr != nil {
		return nil, wrapStage(ctx, &FetchStreamError{Err: streamErr})
	}

	messages := agg.Finish()
	stats.Discarded = agg.Discarded()
	logger.Debug("fetch complete",
		slog.Int("selected", len(selected)),
		slog.Int("returned", len(messages)),
		slog.Int("discarded", stats.Discarded),
	)
	return messages, nil
}

// dispatch decodes one stream and hands it to the aggregator.
func (f *Fetcher) dispatch(logger *slog.Logger, agg *Aggregator, ev StreamEvent, received time.Time) {
	var err error
	switch ev.Kind {
	case StreamHeader:
		err = agg.AddHeader(ev.SeqNum, DecodeHeader(ev.Data, received))
	case StreamBody:
		err = agg.AddBody(ev.SeqNum, DecodeBody(ev.Data))
	default:
		err = fmt.Errorf("unexpected stream kind %d", ev.Kind)
	}
	if err != nil {
		logger.Debug("stream ignored",
			slog.Int("seq", int(ev.SeqNum)),
			slog.String("kind", ev.Kind.String()),
			logging.Err(err),
		)
	}
}

// Mailboxes lists the mailboxes of the account on a fresh session.
func (f *Fetcher) Mailboxes(ctx context.Context) ([]Mailbox, error) {
	session, err := f.dialer.Dial(ctx)
	if err != nil {
		return nil, wrapStage(ctx, err)
	}
	defer session.Close()

	mailboxes, err := session.ListMailboxes(ctx)
	if err != nil {
		return nil, wrapStage(ctx, err)
	}
	return mailboxes, nil
}

// selectNewest reverses ascending sequence numbers and keeps the first limit.
func selectNewest(ascending []uint32, limit int) []uint32 {
	newest := slices.Clone(ascending)
	slices.Reverse(newest)
	if limit > 0 && len(newest) > limit {
		newest = newest[:limit]
	}
	return newest
}

// wrapStage prefers the context error when the session was torn down by
// cancellation.
func wrapStage(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
