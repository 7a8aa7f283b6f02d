// Package model holds the task and today-queue records shared by the parser,
// the stores and the tracker, plus the two recoverable error kinds.
package model

import (
	"errors"
	"fmt"
)

var (
	ErrParse      = errors.New("parse error")
	ErrValidation = errors.New("validation error")
)

// Message codes carried by ParseError and ValidationError. They double as
// message ids for localized output.
const (
	CodeEmptyInput      = "err_empty_input"
	CodeNoName          = "err_no_name"
	CodeEmptyName       = "err_empty_name"
	CodeDueInPast       = "err_due_in_past"
	CodeEmptyIdentifier = "err_empty_identifier"
	CodeTaskNotFound    = "err_task_not_found"
	CodeAmbiguousName   = "err_ambiguous_name"
	CodeInvalidIndex    = "err_invalid_index"
	CodeEmptyKeyword    = "err_empty_keyword"
	CodeEmptySubtask    = "err_empty_subtask"
	CodeInvalidStatus   = "err_invalid_status"
)

// ParseError reports that no usable task could be derived from the input.
// It satisfies errors.Is(err, ErrParse).
type ParseError struct {
	Code   string
	Reason string
}

func (e *ParseError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrParse.Error()
	}
	return e.Reason
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ValidationError reports semantically invalid input. It satisfies
// errors.Is(err, ErrValidation).
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrValidation.Error()
	}
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewParseError(code, format string, args ...any) error {
	return &ParseError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func NewValidationError(code, format string, args ...any) error {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Code extracts the message code of a parse or validation error.
func Code(err error) (string, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code, pe.Code != ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code, ve.Code != ""
	}
	return "", false
}
