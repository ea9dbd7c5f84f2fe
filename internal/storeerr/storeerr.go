package storeerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a store operation failed.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindIOFailure        Kind = "io_failure"
	KindParseFailure     Kind = "parse_failure"
	KindConflict         Kind = "conflict"
	KindInvalid          Kind = "invalid"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrIOFailure        = &Error{Kind: KindIOFailure}
	ErrParseFailure     = &Error{Kind: KindParseFailure}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalid          = &Error{Kind: KindInvalid}
)

// Error is a store failure carrying its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so callers can match on the package sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Kind == other.Kind && other.Op == "" && other.Err == nil
}

func newError(kind Kind, op, path string, err error) error {
	var existing *Error
	if errors.As(err, &existing) && existing.Kind != "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func NotFound(op, path string, err error) error {
	return newError(KindNotFound, op, path, err)
}

func CapacityExceeded(op string, usage, need, ceiling int64) error {
	return &Error{
		Kind: KindCapacityExceeded,
		Op:   op,
		Err:  fmt.Errorf("usage %d + %d bytes exceeds ceiling %d", usage, need, ceiling),
	}
}

func IOFailure(op, path string, err error) error {
	return newError(KindIOFailure, op, path, err)
}

func ParseFailure(op, path string, err error) error {
	return newError(KindParseFailure, op, path, err)
}

func Conflict(op string, err error) error {
	return newError(KindConflict, op, "", err)
}

func Invalid(op string, err error) error {
	return newError(KindInvalid, op, "", err)
}

// KindOf returns the kind of err, or the empty kind when err is not a store error.
func KindOf(err error) Kind {
	var storeErr *Error
	if errors.As(err, &storeErr) && storeErr != nil {
		return storeErr.Kind
	}
	return ""
}
