package common

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("remote file not found")
	ErrSignatureInvalid       = errors.New("signature verification failed")
	ErrLockContention         = errors.New("file lock contention")
	ErrMalformedCatalog       = errors.New("malformed catalog")
	ErrUnsupportedCombination = errors.New("unsupported os/version/bitness combination")
	ErrConfiguration          = errors.New("invalid configuration")

	ErrTargetExists    = errors.New("target file already exists")
	ErrDuplicateFilter = errors.New("duplicate filter")
)

// Error carries an error kind alongside the failing operation so callers
// can branch on the kind with errors.Is while logs keep the context.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Error())
	}

	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind.Error(), e.Err.Error())
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Ef(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
