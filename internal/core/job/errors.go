package job

import "fmt"

// ParseError means the raw bytes were not a structured job record. The
// file is never claimed; a synthetic error artifact set is written instead.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s", e.Reason) }

// ValidationError means the record parsed but is not a usable job.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// NavigationError means content loading failed for a non-deadline reason.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string { return fmt.Sprintf("navigation failed for %s: %v", e.URL, e.Err) }
func (e *NavigationError) Unwrap() error { return e.Err }

// TimeoutError means a load or wait exceeded its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// ActionError means a specific scripted step failed.
type ActionError struct {
	Index int
	Type  ActionType
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s) failed: %v", e.Index, e.Type, e.Err)
}
func (e *ActionError) Unwrap() error { return e.Err }

// ExtractionError means an extraction spec failed fatally. Unmatched
// selectors are not errors; they yield null values.
type ExtractionError struct {
	Index    int
	Selector string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %d (%s) failed: %v", e.Index, e.Selector, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }
