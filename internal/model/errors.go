package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindTransientIO covers unreachable networks and stores.
	KindTransientIO ErrorKind = "transient_io"
	// KindDataFormat covers unexpected payload or schema shapes. Retried,
	// though it usually recurs identically.
	KindDataFormat ErrorKind = "data_format"
	// KindResourceMissing covers absent buckets and keys. Never retried.
	KindResourceMissing ErrorKind = "resource_missing"
	// KindNotifier covers alert delivery failures. Swallowed.
	KindNotifier ErrorKind = "notifier_failure"
)

// StageError is a classified failure raised by a stage or a collaborator.
type StageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func TransientIO(op string, err error) error {
	return &StageError{Kind: KindTransientIO, Op: op, Err: err}
}

func DataFormat(op string, err error) error {
	return &StageError{Kind: KindDataFormat, Op: op, Err: err}
}

func ResourceMissing(op string, err error) error {
	return &StageError{Kind: KindResourceMissing, Op: op, Err: err}
}

func NotifierFailure(op string, err error) error {
	return &StageError{Kind: KindNotifier, Op: op, Err: err}
}

// KindOf returns the kind of the first StageError in err's chain.
// Unclassified errors are treated as transient.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransientIO
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return KindOf(err) == KindResourceMissing
}
