package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced before any network or storage activity.
var (
	// ErrBadDate reports a malformed CLI date argument. Fatal at startup.
	ErrBadDate = errors.New("dates must be in YYYY-MM-DD format")

	// ErrUnknownDestination reports an unrecognized --load-to value.
	ErrUnknownDestination = errors.New("unknown load destination")

	// ErrNotImplemented reports a recognized but unimplemented destination.
	ErrNotImplemented = errors.New("destination not implemented")
)

// FetchError reports a list-fetch failure the transport could not recover
// from after its retry budget was exhausted. Non-retryable for the run.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MissingKeyError reports an upsert row lacking one or more of its entity's
// declared unique-key columns. Fatal: integrity cannot be guaranteed, the
// run aborts and the load transaction rolls back.
type MissingKeyError struct {
	Entity  string
	Columns []string
	Row     Record
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("entity %s: row missing required key column(s) %s",
		e.Entity, strings.Join(e.Columns, ", "))
}
