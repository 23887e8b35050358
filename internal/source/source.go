package source

import (
	"errors"
	"fmt"
)

// SourceType identifies the external service an error came from.
type SourceType string

const (
	SourceTypeMail     SourceType = "mail"
	SourceTypeCalendar SourceType = "calendar"
)

// AuthError indicates that authentication has failed for a source, either
// because the credentials were rejected or because no credential could be
// obtained at all.
type AuthError struct {
	SourceType SourceType
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransportError wraps a network or protocol failure talking to a source.
// Op names the command that failed (e.g. "UID SEARCH", "events.insert").
type TransportError struct {
	SourceType SourceType
	Op         string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s) during %s: %v", e.SourceType, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// ParseError is returned when a recorded date is not in day/month/year form.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: invalid date %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var pErr *ParseError
	return errors.As(err, &pErr)
}
