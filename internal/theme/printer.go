package theme

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/bdaycal/internal/model"
)

// Section headers printed between the two pipeline phases.
const (
	MailPhaseHeader     = "|---PROCESSING EMAILS AND POPULATING CSV---|"
	CalendarPhaseHeader = "|---PROCESSING CSV AND POPULATING GOOGLE CALENDAR---|"
)

// Printer writes the progress lines a user follows during a run. Colors are
// dropped automatically when w is not a terminal.
type Printer struct {
	w      io.Writer
	styles Styles
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:      w,
		styles: NewStyles(lipgloss.NewRenderer(w)),
	}
}

func (p *Printer) line(style lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(p.w, style.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) LedgerDeleted(path string) {
	p.line(p.styles.Muted, "Deleted %s.", path)
}

func (p *Printer) NoNewMail() {
	p.line(p.styles.Info, "No new emails found.")
}

func (p *Printer) Fetched(n int) {
	p.line(p.styles.Info, "Fetched %d unseen emails.", n)
}

func (p *Printer) Header(text string) {
	p.line(p.styles.Header, "%s", text)
}

// Added reports a record written to the ledger.
func (p *Printer) Added(rec model.Record) {
	p.line(p.styles.Added, "Added event: %s on %s", rec.Description, rec.Date)
}

// NotAdded reports a record whose calendar event already exists.
func (p *Printer) NotAdded(rec model.Record) {
	p.line(p.styles.Skipped, "%s - %s - NOT ADDED", rec.Description, rec.Date)
}

func (p *Printer) Created(rec model.Record) {
	p.line(p.styles.Created, "Created event: %s on %s", rec.Description, rec.Date)
}

// WouldCreate is Created for dry runs.
func (p *Printer) WouldCreate(rec model.Record) {
	p.line(p.styles.Muted, "Would create event: %s on %s", rec.Description, rec.Date)
}

func (p *Printer) Summary(c model.RunCounts) {
	p.line(p.styles.Muted,
		"%d fetched, %d recorded, %d duplicates, %d unmatched, %d created, %d already present",
		c.Fetched, c.Recorded, c.Duplicates, c.Misses, c.Created, c.Skipped)
}

// Records prints the ledger contents as a table.
func (p *Printer) Records(recs []model.Record) {
	if len(recs) == 0 {
		p.line(p.styles.Muted, "Ledger is empty.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.styles.Border).
		Headers("#", "DESCRIPTION", "DATE")
	for i, rec := range recs {
		t.Row(strconv.Itoa(i+1), rec.Description, rec.Date)
	}
	fmt.Fprintln(p.w, t.Render())
}

// Runs prints run history as a table, newest first.
func (p *Printer) Runs(runs []model.Run) {
	if len(runs) == 0 {
		p.line(p.styles.Muted, "No runs recorded.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.styles.Border).
		Headers("STARTED", "STATUS", "FETCHED", "RECORDED", "CREATED", "SKIPPED", "ERROR")
	for _, r := range runs {
		status := r.Status
		if r.DryRun {
			status += " (dry)"
		}
		t.Row(
			r.StartedAt.Local().Format(time.DateTime),
			p.styles.StatusStyle(r.Status).Render(status),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Recorded),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Skipped),
			r.Error,
		)
	}
	fmt.Fprintln(p.w, t.Render())
}
