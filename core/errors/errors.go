// Package errors holds the error types shared by the package reader, the
// member stores and the CLI. Every type unwraps to one of the sentinels
// below, so callers classify failures with Is instead of type switches.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound classifies a missing archive member, blob or stored run.
	ErrNotFound = errors.New("not found")
	// ErrInvalid classifies rejected input: member names, globs, manifests.
	ErrInvalid = errors.New("invalid input")
	// ErrUnsupported classifies formats and features the tools do not handle.
	ErrUnsupported = errors.New("unsupported")
)

// cause returns err, or fallback when err is nil.
func cause(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// NotFoundError names the kind and id of something that does not exist.
type NotFoundError struct {
	Resource string // "archive member", "run", ...
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports input that was rejected before any work was done.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return cause(e.Err, ErrInvalid) }

// IOError wraps a failure reading or writing a file or archive member.
type IOError struct {
	Operation string // "open member", "rename", ...
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports a manifest or part that could not be decoded.
type ParseError struct {
	Format  string // "content types", "relationships", "XML"
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
	}
	return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return cause(e.Err, ErrInvalid) }

// UnsupportedError reports a format or feature outside what is handled.
type UnsupportedError struct {
	Feature string
	Value   string
}

func (e *UnsupportedError) Error() string {
	if e.Value == "" {
		return "unsupported " + e.Feature
	}
	return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Value)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// NewNotFound returns a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewValidation returns a ValidationError with no underlying cause.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewIO returns an IOError.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewParse returns a ParseError with no underlying cause.
func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

// NewParseWrap returns a ParseError carrying the decoder's error.
func NewParseWrap(format, path string, err error) *ParseError {
	return &ParseError{Format: format, Path: path, Message: err.Error(), Err: err}
}

// NewUnsupported returns an UnsupportedError for value.
func NewUnsupported(feature, value string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Value: value}
}

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New is errors.New.
func New(text string) error { return errors.New(text) }

// Is is errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
