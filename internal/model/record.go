package model

import (
	"fmt"
	"time"

	"github.com/nhle/bdaycal/internal/source"
)

// DateLayout is the day/month/year form birthdays are written in. Single
// digit days and months are accepted.
const DateLayout = "2/1/2006"

// MessageID is the IMAP UID of a mailbox message.
type MessageID uint32

// Record is one birthday extracted from a message. Two records are the same
// record when both fields match exactly.
type Record struct {
	// Description becomes the calendar event summary.
	Description string `json:"description"`

	// Date is the birthday in day/month/year form, as written in the mail.
	Date string `json:"date"`
}

// Day parses Date. The returned time is midnight UTC.
func (r Record) Day() (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, r.Date, time.UTC)
	if err != nil {
		return time.Time{}, &source.ParseError{Value: r.Date, Err: err}
	}
	return day, nil
}

// String renders the record the way progress lines show it.
func (r Record) String() string {
	return fmt.Sprintf("%s on %s", r.Description, r.Date)
}
