package archive

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrEmptyPath = errors.New("archive path is empty")
	ErrClosed    = errors.New("archive closed")
)
