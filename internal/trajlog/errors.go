package trajlog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a source file is missing or unreadable.
	ErrNotFound = errors.New("trajectory log not found")

	// ErrCorruptData is returned when a binary payload is truncated, has a
	// size mismatch, or violates a structural invariant.
	ErrCorruptData = errors.New("corrupt trajectory data")

	// ErrParse marks a text record that could not be tokenized or converted.
	// Match it with errors.Is; the concrete error is a *ParseError.
	ErrParse = errors.New("parse error")

	// ErrOutOfRange is returned when a queried time falls outside the log.
	ErrOutOfRange = errors.New("time out of range")

	// ErrUnknownFormat is returned by Open for an unrecognised file extension.
	ErrUnknownFormat = errors.New("unknown trajectory file format")

	// ErrCancelled is returned when a load is cancelled through its progress
	// callback or context.
	ErrCancelled = errors.New("load cancelled")

	// ErrInvalidEntity is returned for a negative or oversized entity ID.
	ErrInvalidEntity = errors.New("invalid entity id")

	// ErrTypeConflict is returned in strict mode when an entity's recorded
	// type changes between records.
	ErrTypeConflict = errors.New("entity type changed")

	// ErrTooManyFrames is returned when a record's timestamp would grow the
	// frame index past the configured limit.
	ErrTooManyFrames = errors.New("frame index limit exceeded")

	// ErrNotReady is returned by Pending.Result before loading has finished.
	ErrNotReady = errors.New("trajectory log still loading")
)

// ParseError describes a text record that was rejected during ingestion.
type ParseError struct {
	Line int    // 1-based line number in the source
	Text string // the offending line
	Err  error  // underlying cause
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

// Unwrap exposes both ErrParse and the underlying cause to errors.Is.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

func corrupt(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, v...))
}
