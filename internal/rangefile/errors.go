package rangefile

import "errors"

// FormatError indicates a structural violation of the range file
// invariants in spec.md §3: bad magic/version, out-of-bounds level,
// or a range sequence that isn't strictly increasing and disjoint.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "rangefile: format error: " + e.Reason }

// IoError wraps an underlying filesystem/mmap failure.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string { return "rangefile: io error opening " + e.Path + ": " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

var errClosed = errors.New("rangefile: reader is closed")
