package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEntry marks an entry whose markup violates the known shape
	// of the listing site. It is fatal for that entry only.
	ErrMalformedEntry = errors.New("malformed entry")

	// ErrPairingMismatch is returned when a page has a different number of
	// name blocks and detail blocks. It is fatal for the page.
	ErrPairingMismatch = errors.New("name/detail count mismatch")
)

// MalformedEntryError describes which entry and label broke an assumption
// about the source markup.
type MalformedEntryError struct {
	Name   string // record name; empty while the label is still being collected
	Label  string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("malformed entry %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("malformed entry %q: label %q: %s", e.Name, e.Label, e.Reason)
}

func (e *MalformedEntryError) Unwrap() error { return ErrMalformedEntry }
