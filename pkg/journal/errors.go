package journal

import "errors"

var (
	ErrCorrupted   = errors.New("journal: corrupted entry")
	ErrInvalidLSN  = errors.New("journal: invalid LSN")
	ErrLogClosed   = errors.New("journal: log closed")
	ErrLogNotFound = errors.New("journal: log not found")
	ErrTruncated   = errors.New("journal: truncated entry")
)
