package sites

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier indicates an update or delete without a site id.
	ErrMissingIdentifier = errors.New("site: missing identifier")
	// ErrNotFound indicates a missing site record.
	ErrNotFound = errors.New("site: not found")
)

// StoreWriteError wraps a failed create, update or delete.
type StoreWriteError struct {
	Op     string
	SiteID string
	Err    error
}

func (e *StoreWriteError) Error() string {
	if e.SiteID == "" {
		return fmt.Sprintf("site store write (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("site store write (%s %s): %v", e.Op, e.SiteID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreReadError wraps a failed query or a broken live subscription.
type StoreReadError struct {
	Op  string
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("site store read (%s): %v", e.Op, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }
