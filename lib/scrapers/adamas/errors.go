package adamas

import (
	"errors"
	"fmt"
)

var (
	// the login form did not carry a csrf token, the attempt cannot
	// proceed and is not retried inline
	ErrCsrfMissing = errors.New("could not find csrf token on the login page")
	// the portal re-rendered the login form instead of redirecting
	ErrInvalidCredentials = errors.New("invalid registration number or password")
	// network-level failure (timeout, dns, tls), distinct from a
	// rejected login so callers can decide whether to retry
	ErrTransport = errors.New("could not reach the portal")
)

// NoTableError means the page parsed fine but the expected table was
// absent, usually because the session silently expired and the portal
// served the login page instead. Snippet carries the head of the raw
// HTML for diagnostics.
type NoTableError struct {
	Selector string
	Snippet  string
}

func (e *NoTableError) Error() string {
	return fmt.Sprintf("no %q table found on page", e.Selector)
}

// AvailableDate is one date the routine page does have a row for,
// returned as a hint when the requested date matches nothing.
type AvailableDate struct {
	DayName string `json:"dayName"`
	DayDate string `json:"dayDate"`
	RawDate string `json:"rawDate"`
}

type DateNotFoundError struct {
	Requested string
	Available []AvailableDate
}

func (e *DateNotFoundError) Error() string {
	return fmt.Sprintf("no routine row matches date %s (%d dates on page)", e.Requested, len(e.Available))
}
