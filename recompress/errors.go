package recompress

import (
	"errors"
	"fmt"
)

// Kind classifies a recompression failure by how the batch reacts to it.
type Kind string

const (
	// KindUnreadableImage: the source cannot be parsed or decoded. Per file.
	KindUnreadableImage Kind = "unreadable_image"
	// KindInvalidQuality: configuration error, rejected before any file.
	KindInvalidQuality Kind = "invalid_quality"
	// KindIO: a write, delete or copy failed. Per file.
	KindIO Kind = "io_failure"
	// KindOutputConflict: another file of the batch already owns one of
	// the output names. Per file, nothing is written.
	KindOutputConflict Kind = "output_conflict"
)

// Error carries the failure kind, the stage that failed and the file involved.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var msg string
	if e.Path != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Path)
	} else {
		msg = fmt.Sprintf("[%s:%s]", e.Kind, e.Op)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

var (
	ErrUnreadableImage = &Error{Kind: KindUnreadableImage}
	ErrInvalidQuality  = &Error{Kind: KindInvalidQuality}
	ErrIOFailure       = &Error{Kind: KindIO}
	ErrOutputConflict  = &Error{Kind: KindOutputConflict}
)

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}

// Quality bounds accepted for the lossy encoder.
const (
	MinQuality = 1
	MaxQuality = 95
)

// ValidateQuality rejects qualities outside [MinQuality, MaxQuality].
func ValidateQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return newError(KindInvalidQuality, "validate", "",
			fmt.Errorf("quality %d outside %d-%d", quality, MinQuality, MaxQuality))
	}
	return nil
}
