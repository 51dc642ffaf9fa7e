package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrLoading is returned by operations that refuse to run while a fetch is in flight.
	ErrLoading = errors.New("grid is loading")
	// ErrLocalSource is returned when a fetch is attempted against a source that has
	// already been consumed into local data.
	ErrLocalSource = errors.New("local data source can only be loaded once")
	ErrNotEditing  = errors.New("no edit in progress")
	ErrEditLocked  = errors.New("another edit is in progress")
	ErrNotEditable = errors.New("column is not editable")
	ErrUnknownRow  = errors.New("unknown row")
	// ErrUnknownColumn wraps lookups of column names missing from the column model.
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotSortable   = errors.New("column is not sortable")
	ErrNoTree        = errors.New("grid has no tree extension installed")
)

// SetupError reports a structural problem with the grid definition. Grid
// construction is abandoned when one is returned.
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string {
	return "grid setup: " + e.Reason
}

// TransportError is a network or status failure while talking to a data source
// or persister. Prior grid data is left untouched.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PayloadError reports a response body the adapter could not parse at all.
type PayloadError struct {
	Format string
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Format, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ValidationError is the first failing edit rule of a submit.
type ValidationError struct {
	Column  string
	Label   string
	Message string
}

func (e *ValidationError) Error() string {
	name := e.Label
	if name == "" {
		name = e.Column
	}
	return name + ": " + e.Message
}

// TreeRangeError reports a nested-set range that does not nest inside its parent.
type TreeRangeError struct {
	Parent string
	Child  string
}

func (e *TreeRangeError) Error() string {
	return fmt.Sprintf("node %s range is not inside parent %s", e.Child, e.Parent)
}
