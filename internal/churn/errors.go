package churn

import "fmt"

// FileAccessError is returned when the input cannot be opened or decoded.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("unable to read %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed row or field. Line is 1-based and counts the
// header.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: column %s: invalid value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LabelMappingError is returned when a Churn value is neither "Yes" nor "No".
type LabelMappingError struct {
	Row   int
	Value string
}

func (e *LabelMappingError) Error() string {
	return fmt.Sprintf("row %d: unexpected churn label %q (want Yes or No)", e.Row, e.Value)
}

func newParseError(line int, column, value string, err error) error {
	return &ParseError{Line: line, Column: column, Value: value, Err: err}
}

// Warning kinds.
const (
	WarnNulls      = "nulls"
	WarnDuplicates = "duplicate_ids"
)

// IntegrityWarning is a non-fatal data quality finding.
type IntegrityWarning struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (w IntegrityWarning) String() string {
	return w.Kind + ": " + w.Detail
}
