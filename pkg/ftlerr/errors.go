// Package ftlerr defines the error taxonomy shared by every component of
// the full-text storage engine. Callers compare with errors.Is against
// the sentinel Code values; Error carries the failing operation and file
// path so the top-level driver can log it before re-raising.
package ftlerr

import (
	"errors"
	"fmt"
)

// Code identifies which branch of the taxonomy an error belongs to.
type Code int

const (
	_ Code = iota
	BadArgument
	NotSupported
	SQLSyntaxError
	ClassCast
	LogItemCorrupted
	MemoryExhaust
	FileNotOpen
	Cancelled
	VerifyAborted
	Unexpected
)

func (c Code) String() string {
	switch c {
	case BadArgument:
		return "BadArgument"
	case NotSupported:
		return "NotSupported"
	case SQLSyntaxError:
		return "SQLSyntaxError"
	case ClassCast:
		return "ClassCast"
	case LogItemCorrupted:
		return "LogItemCorrupted"
	case MemoryExhaust:
		return "MemoryExhaust"
	case FileNotOpen:
		return "FileNotOpen"
	case Cancelled:
		return "Cancelled"
	case VerifyAborted:
		return "VerifyAborted"
	case Unexpected:
		return "Unexpected"
	default:
		return "Unknown"
	}
}

// sentinel is the value returned by errors.Is comparisons; one per Code.
type sentinel struct{ code Code }

func (s *sentinel) Error() string { return s.code.String() }

var sentinels = map[Code]*sentinel{
	BadArgument:      {BadArgument},
	NotSupported:     {NotSupported},
	SQLSyntaxError:   {SQLSyntaxError},
	ClassCast:        {ClassCast},
	LogItemCorrupted: {LogItemCorrupted},
	MemoryExhaust:    {MemoryExhaust},
	FileNotOpen:      {FileNotOpen},
	Cancelled:        {Cancelled},
	VerifyAborted:    {VerifyAborted},
	Unexpected:       {Unexpected},
}

// Sentinel values usable directly with errors.Is(err, ftlerr.ErrBadArgument).
var (
	ErrBadArgument      = sentinels[BadArgument]
	ErrNotSupported     = sentinels[NotSupported]
	ErrSQLSyntaxError   = sentinels[SQLSyntaxError]
	ErrClassCast        = sentinels[ClassCast]
	ErrLogItemCorrupted = sentinels[LogItemCorrupted]
	ErrMemoryExhaust    = sentinels[MemoryExhaust]
	ErrFileNotOpen      = sentinels[FileNotOpen]
	ErrCancelled        = sentinels[Cancelled]
	ErrVerifyAborted    = sentinels[VerifyAborted]
	ErrUnexpected       = sentinels[Unexpected]
)

// Error is the tagged-variant error value every package in this module
// returns instead of ad hoc fmt.Errorf chains, per the "dynamic_cast"
// re-architecture note: Code replaces a class hierarchy, Op/Path/Err
// replace dynamic_cast'd context lookups.
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "lob.insert"
	Path string // file path, if relevant; empty otherwise
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Code, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ftlerr.ErrBadArgument) match any *Error carrying
// the same Code, without requiring identical Op/Path/Err.
func (e *Error) Is(target error) bool {
	if s, ok := target.(*sentinel); ok {
		return e.Code == s.code
	}
	return false
}

// New builds an *Error for the given code/operation, optionally wrapping
// cause.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// WithPath attaches a file path to an existing *Error (or wraps a plain
// error as Unexpected if it isn't already one of ours).
func WithPath(err error, path string) error {
	var fe *Error
	if errors.As(err, &fe) {
		clone := *fe
		clone.Path = path
		return &clone
	}
	return &Error{Code: Unexpected, Op: "unknown", Path: path, Err: err}
}

// Of returns the Code of err if it is (or wraps) an *Error, else Unexpected.
func Of(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Unexpected
}
