// Package shared contains error kinds and helpers shared by every domain package
// of the recomputation pipeline. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is().
var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidInput = errors.New("invalid input")

	// Data inconsistencies detected while recomputing. They are logged and the
	// offending row is skipped; they never abort a run.
	ErrInconsistentData = errors.New("inconsistent data")

	ErrStorage = errors.New("storage error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "scoring", "ranking", "stats"
	Op      string // Operation that failed, e.g. "ParseContext", "UpdateColumns"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Scoring domain errors
var (
	ErrLeaderboardNotFound = NewDomainError("scoring", "FindLeaderboard", ErrNotFound, "leaderboard not found")
	ErrInvalidContext      = NewDomainError("scoring", "ParseContext", ErrInvalidInput, "unknown leaderboard context")
	ErrInvalidStatus       = NewDomainError("scoring", "ParseStatus", ErrInvalidInput, "unknown difficulty status")
)

// Batch writer errors
var (
	ErrUnknownTable  = NewDomainError("batch", "UpdateColumns", ErrInvalidInput, "unknown table")
	ErrUnknownColumn = NewDomainError("batch", "UpdateColumns", ErrInvalidInput, "column is not updatable")
	ErrMissingValue  = NewDomainError("batch", "UpdateColumns", ErrInconsistentData, "row is missing a column value")
)

// IsValidation checks if the error is caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInconsistentData reports whether the error marks a row that must be skipped.
func IsInconsistentData(err error) bool {
	return errors.Is(err, ErrInconsistentData)
}
