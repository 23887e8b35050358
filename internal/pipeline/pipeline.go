// Package pipeline runs the two phases of a sync: unread mail into the CSV
// ledger, then the ledger into the calendar.
package pipeline

import (
	"context"
	"fmt"

	"github.com/nhle/bdaycal/internal/ledger"
	"github.com/nhle/bdaycal/internal/logger"
	"github.com/nhle/bdaycal/internal/model"
	"github.com/nhle/bdaycal/internal/theme"
)

// Mailbox is an open mail session with the inbox selected. FetchBody returns
// readable text with any markup already removed.
type Mailbox interface {
	ListUnseen(ctx context.Context) ([]model.MessageID, error)
	FetchBody(ctx context.Context, id model.MessageID) (string, error)
	Delete(ctx context.Context, id model.MessageID) error
	Close() error
}

// MailConnector opens mail sessions.
type MailConnector interface {
	Connect(ctx context.Context) (Mailbox, error)
}

// MailConnectorFunc adapts a function to MailConnector.
type MailConnectorFunc func(ctx context.Context) (Mailbox, error)

func (f MailConnectorFunc) Connect(ctx context.Context) (Mailbox, error) { return f(ctx) }

// Calendar is an authenticated calendar session.
type Calendar interface {
	EventExists(ctx context.Context, calendarID string, rec model.Record) (bool, error)
	CreateEvent(ctx context.Context, calendarID string, rec model.Record) error
}

// CalendarConnector authenticates calendar sessions.
type CalendarConnector interface {
	Connect(ctx context.Context) (Calendar, error)
}

// CalendarConnectorFunc adapts a function to CalendarConnector.
type CalendarConnectorFunc func(ctx context.Context) (Calendar, error)

func (f CalendarConnectorFunc) Connect(ctx context.Context) (Calendar, error) { return f(ctx) }

// Ledger is the run's CSV working file.
type Ledger interface {
	Path() string
	Reset() (bool, error)
	Load() ([]model.Record, error)
	Append(rec model.Record) error
}

// Extractor pulls a record out of the readable text of a message.
type Extractor interface {
	Extract(text string) (model.Record, bool)
}

// History records runs for later inspection. Failures are logged, never
// fatal.
type History interface {
	StartRun(ctx context.Context, dryRun bool) (string, error)
	RecordEntry(ctx context.Context, runID string, rec model.Record, outcome string) error
	FinishRun(ctx context.Context, runID string, counts model.RunCounts, runErr error) error
}

// Options control a single run.
type Options struct {
	CalendarID string

	// DryRun extracts and records to the ledger but leaves mail in place and
	// creates no events.
	DryRun bool
}

// Result is what a run did.
type Result struct {
	RunID string
	model.RunCounts
}

// Runner wires the collaborators of a run together.
type Runner struct {
	opts      Options
	mail      MailConnector
	ledger    Ledger
	calendar  CalendarConnector
	extractor Extractor
	printer   *theme.Printer
	history   History
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(
	opts Options,
	mail MailConnector,
	l Ledger,
	calendar CalendarConnector,
	extractor Extractor,
	printer *theme.Printer,
	history History,
) *Runner {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	return &Runner{
		opts:      opts,
		mail:      mail,
		ledger:    l,
		calendar:  calendar,
		extractor: extractor,
		printer:   printer,
		history:   history,
	}
}

// Run executes both phases. Any error aborts the run; the mail phase always
// finishes before the first calendar call.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	log := logger.FromContext(ctx)
	res := &Result{}

	res.RunID = r.startRun(ctx)
	if res.RunID != "" {
		log = log.With().Str("run_id", res.RunID).Logger()
		ctx = logger.WithContext(ctx, log)
	}

	err := r.run(ctx, res)
	r.finishRun(ctx, res, err)

	return res, err
}

func (r *Runner) run(ctx context.Context, res *Result) error {
	deleted, err := r.ledger.Reset()
	if err != nil {
		return fmt.Errorf("resetting ledger: %w", err)
	}
	if deleted {
		r.printer.LedgerDeleted(r.ledger.Path())
	}

	more, err := r.processMail(ctx, res)
	if err != nil {
		return err
	}
	if !more {
		return nil
	}

	return r.processLedger(ctx, res)
}

// processMail runs the mail phase. It reports false when the inbox had
// nothing unread and the run should stop.
func (r *Runner) processMail(ctx context.Context, res *Result) (bool, error) {
	log := logger.FromContext(ctx)

	mb, err := r.mail.Connect(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := mb.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing mail session")
		}
	}()

	ids, err := mb.ListUnseen(ctx)
	if err != nil {
		return false, err
	}

	res.Fetched = len(ids)
	if len(ids) == 0 {
		r.printer.NoNewMail()
		return false, nil
	}
	r.printer.Fetched(len(ids))

	seen, err := r.ledger.Load()
	if err != nil {
		return false, fmt.Errorf("loading ledger: %w", err)
	}

	r.printer.Header(theme.MailPhaseHeader)

	for _, id := range ids {
		body, err := mb.FetchBody(ctx, id)
		if err != nil {
			return false, err
		}

		rec, ok := r.extractor.Extract(body)
		if !ok {
			res.Misses++
			log.Debug().Uint32("uid", uint32(id)).Msg("No birthday markers, leaving message unread")
			continue
		}

		if ledger.Exists(rec, seen) {
			res.Duplicates++
			log.Info().
				Uint32("uid", uint32(id)).
				Str("description", rec.Description).
				Str("date", rec.Date).
				Msg("Duplicate record, leaving message unread")
			r.recordEntry(ctx, res.RunID, rec, model.OutcomeDuplicate)
			continue
		}

		// The row must be on disk before the message goes away.
		if err := r.ledger.Append(rec); err != nil {
			return false, fmt.Errorf("appending to ledger: %w", err)
		}
		r.printer.Added(rec)
		seen = append(seen, rec)
		res.Recorded++
		r.recordEntry(ctx, res.RunID, rec, model.OutcomeRecorded)

		if r.opts.DryRun {
			log.Info().Uint32("uid", uint32(id)).Msg("Dry run, keeping message")
			continue
		}
		if err := mb.Delete(ctx, id); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (r *Runner) processLedger(ctx context.Context, res *Result) error {
	log := logger.FromContext(ctx)

	cal, err := r.calendar.Connect(ctx)
	if err != nil {
		return err
	}

	recs, err := r.ledger.Load()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	r.printer.Header(theme.CalendarPhaseHeader)

	for _, rec := range recs {
		exists, err := cal.EventExists(ctx, r.opts.CalendarID, rec)
		if err != nil {
			return fmt.Errorf("checking event for %s: %w", rec, err)
		}

		if exists {
			res.Skipped++
			r.printer.NotAdded(rec)
			r.recordEntry(ctx, res.RunID, rec, model.OutcomeSkipped)
			continue
		}

		if r.opts.DryRun {
			r.printer.WouldCreate(rec)
			continue
		}

		if err := cal.CreateEvent(ctx, r.opts.CalendarID, rec); err != nil {
			return fmt.Errorf("creating event for %s: %w", rec, err)
		}
		res.Created++
		r.printer.Created(rec)
		r.recordEntry(ctx, res.RunID, rec, model.OutcomeCreated)
		log.Debug().Str("description", rec.Description).Str("date", rec.Date).Msg("Created calendar event")
	}

	return nil
}

func (r *Runner) startRun(ctx context.Context) string {
	if r.history == nil {
		return ""
	}
	id, err := r.history.StartRun(ctx, r.opts.DryRun)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Run history unavailable")
		return ""
	}
	return id
}

func (r *Runner) recordEntry(ctx context.Context, runID string, rec model.Record, outcome string) {
	if r.history == nil || runID == "" {
		return
	}
	if err := r.history.RecordEntry(ctx, runID, rec, outcome); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("outcome", outcome).Msg("Failed to record run entry")
	}
}

func (r *Runner) finishRun(ctx context.Context, res *Result, runErr error) {
	if r.history == nil || res.RunID == "" {
		return
	}
	// The run context may already be cancelled; the summary should still land.
	ctx = context.WithoutCancel(ctx)
	if err := r.history.FinishRun(ctx, res.RunID, res.RunCounts, runErr); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to finish run history")
	}
}
