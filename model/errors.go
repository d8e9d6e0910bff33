package model

import (
	"errors"
	"fmt"
)

// Kind classifies every error that crosses a component boundary.
type Kind string

const (
	KindValidation          Kind = "Validation"
	KindInvalidTopics       Kind = "InvalidTopics"
	KindNotFound            Kind = "NotFound"
	KindAlreadyRunning      Kind = "AlreadyRunning"
	KindImmutable           Kind = "Immutable"
	KindNotConfigured       Kind = "NotConfigured"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindInternal            Kind = "Internal"
)

// Class groups kinds the way callers react to them.
type Class string

const (
	ClassValidation Class = "ValidationError"
	ClassConflict   Class = "ConflictError"
	ClassConfig     Class = "ConfigError"
	ClassUpstream   Class = "UpstreamError"
	ClassInternal   Class = "InternalError"
)

// Class returns the taxonomy class of k.
func (k Kind) Class() Class {
	switch k {
	case KindValidation, KindInvalidTopics, KindNotFound:
		return ClassValidation
	case KindAlreadyRunning, KindImmutable:
		return ClassConflict
	case KindNotConfigured:
		return ClassConfig
	case KindUpstreamUnavailable:
		return ClassUpstream
	default:
		return ClassInternal
	}
}

// Error carries a Kind plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrImmutable) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInvalidTopics       = &Error{Kind: KindInvalidTopics}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAlreadyRunning      = &Error{Kind: KindAlreadyRunning}
	ErrImmutable           = &Error{Kind: KindImmutable}
	ErrNotConfigured       = &Error{Kind: KindNotConfigured}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to a lower level error.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, KindInternal when none is attached.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
