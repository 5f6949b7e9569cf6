package configstore

import "errors"

// Failure kinds exposed to collaborators, per spec.md §6.
var (
	ErrInvalidCountryCode = errors.New("configstore: invalid country code")
	ErrInvalidRangeFile   = errors.New("configstore: invalid range file")
	ErrIO                 = errors.New("configstore: io error")
	ErrNoPendingConfig    = errors.New("configstore: no pending config")
)
