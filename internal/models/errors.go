package models

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError reports an unknown listing id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("listing not found: %s", e.ID)
}

// InvalidTransitionError reports a workflow precondition violation: the
// listing was not pending when a decision arrived (stale UI, double submit,
// or a lost race).
type InvalidTransitionError struct {
	ID   string
	From ListingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("listing %s is %s, not pending", e.ID, e.From)
}

// ValidationError carries caller-correctable field-level problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
