// Package ledger keeps the CSV file of birthday records collected by a run.
//
// The file has a "Description,Date" header and one row per record. It is a
// working file: every run clears it first, appends what the mailbox yields
// and then replays it into the calendar. Rows are flushed and synced to disk
// before Append returns so a message is never deleted ahead of its row.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nhle/bdaycal/internal/model"
)

const (
	columnDescription = "Description"
	columnDate        = "Date"
)

var header = []string{columnDescription, columnDate}

// Ledger is a CSV-backed record file.
type Ledger struct {
	path string
}

// New returns a ledger stored at path. Nothing is touched on disk.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the file location.
func (l *Ledger) Path() string {
	return l.path
}

// Reset removes the ledger file and reports whether one existed.
func (l *Ledger) Reset() (bool, error) {
	err := os.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing ledger %s: %w", l.path, err)
	}
	return true, nil
}

// Load reads every record in file order. A missing or empty file yields no
// records.
func (l *Ledger) Load() ([]model.Record, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger header: %w", err)
	}

	descCol, dateCol := -1, -1
	for i, name := range head {
		switch name {
		case columnDescription:
			descCol = i
		case columnDate:
			dateCol = i
		}
	}
	if descCol < 0 || dateCol < 0 {
		return nil, fmt.Errorf("ledger %s: header %v lacks %s/%s columns",
			l.path, head, columnDescription, columnDate)
	}

	var records []model.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger row: %w", err)
		}
		if len(row) <= descCol || len(row) <= dateCol {
			return nil, fmt.Errorf("ledger %s: short row %v", l.path, row)
		}
		records = append(records, model.Record{
			Description: row[descCol],
			Date:        row[dateCol],
		})
	}

	return records, nil
}

// Append writes one row, adding the header first when the file is new, and
// syncs the file before returning.
func (l *Ledger) Append(rec model.Record) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger %s: %w", l.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
	}
	if err := w.Write([]string{rec.Description, rec.Date}); err != nil {
		return fmt.Errorf("writing ledger row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing ledger: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}

	return f.Close()
}

// Exists reports whether rec is already in records. Exact match on both
// fields.
func Exists(rec model.Record, records []model.Record) bool {
	for _, r := range records {
		if r == rec {
			return true
		}
	}
	return false
}
