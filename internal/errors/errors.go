// Package errors defines the typed error taxonomy shared across the
// indexer: parsing, file access, the relational store, the text index,
// and source resolution each raise their own kind so callers can decide
// per the policy in the refresh coordinator which errors are local
// (logged and skipped) and which surface as a failed job.
package errors

import (
	"fmt"
	"time"
)

// ErrorType discriminates the six error kinds the coordinator reacts to.
type ErrorType string

const (
	ErrorTypeParse           ErrorType = "parse"
	ErrorTypeIO              ErrorType = "io"
	ErrorTypeDbConstraint    ErrorType = "db_constraint"
	ErrorTypeDbOperational   ErrorType = "db_operational"
	ErrorTypeIndex           ErrorType = "index"
	ErrorTypeResolve         ErrorType = "resolve"
	ErrorTypeConfig          ErrorType = "config"
)

// ParseError reports a malformed classfile.
type ParseError struct {
	Type       ErrorType
	EntryURI   string
	Offset     int
	Underlying error
	Timestamp  time.Time
}

func NewParseError(entryURI string, offset int, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		EntryURI:   entryURI,
		Offset:     offset,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at offset %d: %v", e.EntryURI, e.Offset, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// IoError reports a missing or locked file encountered while indexing.
type IoError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewIoError(op, path string, err error) *IoError {
	return &IoError{
		Type:       ErrorTypeIO,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *IoError) Unwrap() error { return e.Underlying }

// DbConstraintError reports a unique-constraint violation, typically a
// duplicate (fqn, descriptor, internal) triple arising from malformed
// input or a listener racing a refresh. Local: logged, batch continues.
type DbConstraintError struct {
	Type       ErrorType
	Fqn        string
	Underlying error
	Timestamp  time.Time
}

func NewDbConstraintError(fqn string, err error) *DbConstraintError {
	return &DbConstraintError{
		Type:       ErrorTypeDbConstraint,
		Fqn:        fqn,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *DbConstraintError) Error() string {
	return fmt.Sprintf("constraint violation for %q: %v", e.Fqn, e.Underlying)
}

func (e *DbConstraintError) Unwrap() error { return e.Underlying }

// DbOperationalError reports a connection or transaction failure.
// Surfaces as a failed job future; not swallowed.
type DbOperationalError struct {
	Type       ErrorType
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewDbOperationalError(op string, err error) *DbOperationalError {
	return &DbOperationalError{
		Type:       ErrorTypeDbOperational,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *DbOperationalError) Error() string {
	return fmt.Sprintf("db operation %q failed: %v", e.Operation, e.Underlying)
}

func (e *DbOperationalError) Unwrap() error { return e.Underlying }

// IndexError reports a text-index write failure. Surfaces as a failed
// job future; not swallowed.
type IndexError struct {
	Type       ErrorType
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewIndexError(op string, err error) *IndexError {
	return &IndexError{
		Type:       ErrorTypeIndex,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s failed: %v", e.Operation, e.Underlying)
}

func (e *IndexError) Unwrap() error { return e.Underlying }

// ResolveError reports a declined source resolution. Local.
type ResolveError struct {
	Type       ErrorType
	Package    string
	SourceName string
	Underlying error
	Timestamp  time.Time
}

func NewResolveError(pkg, sourceName string, err error) *ResolveError {
	return &ResolveError{
		Type:       ErrorTypeResolve,
		Package:    pkg,
		SourceName: sourceName,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve failed for %s/%s: %v", e.Package, e.SourceName, e.Underlying)
}

func (e *ResolveError) Unwrap() error { return e.Underlying }

// ConfigError reports a configuration validation failure.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// MultiError aggregates per-batch failures so a caller sees one error
// summarizing N swallowed failures without losing the count.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

func (e *MultiError) Unwrap() []error { return e.Errors }
