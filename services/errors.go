package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeInvalidState      ErrorType = "invalid_state"
	ErrorTypeInvalidTransition ErrorType = "invalid_transition"
	ErrorTypeAlreadyTerminal   ErrorType = "already_terminal"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeInternal          ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	// Sentinels also match on message so ErrDuplicateApproval and
	// ErrDuplicateException stay distinguishable under errors.Is.
	return t.Message == "" || e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrRuleNotFound          = NewDomainError(ErrorTypeNotFound, "rule not found", nil)
	ErrChangeRequestNotFound = NewDomainError(ErrorTypeNotFound, "change request not found", nil)
	ErrExceptionNotFound     = NewDomainError(ErrorTypeNotFound, "exception request not found", nil)
	ErrCategoryNotFound      = NewDomainError(ErrorTypeNotFound, "category not found", nil)
	ErrTeamNotFound          = NewDomainError(ErrorTypeNotFound, "team not found", nil)
	ErrAuditEntryNotFound    = NewDomainError(ErrorTypeNotFound, "audit entry not found", nil)

	// Validation Errors
	ErrInvalidInput   = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyRuleName  = NewDomainError(ErrorTypeValidation, "rule name cannot be empty", nil)
	ErrEmptyContent   = NewDomainError(ErrorTypeValidation, "rule content cannot be empty", nil)
	ErrMissingComment = NewDomainError(ErrorTypeValidation, "rejection requires a comment", nil)
	ErrInvalidTimeout = NewDomainError(ErrorTypeValidation, "temporary timeout must be between 1 and 168 hours", nil)

	// State Machine Errors
	ErrInvalidState      = NewDomainError(ErrorTypeInvalidState, "operation not permitted in current state", nil)
	ErrInvalidTransition = NewDomainError(ErrorTypeInvalidTransition, "transition not permitted from current state", nil)
	ErrAlreadyTerminal   = NewDomainError(ErrorTypeAlreadyTerminal, "entity already left its source state", nil)

	// Conflict Errors
	ErrDuplicateApproval  = NewDomainError(ErrorTypeConflict, "user already decided on this rule", nil)
	ErrDuplicateException = NewDomainError(ErrorTypeConflict, "an active exception already exists for this change request", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrForbidden    = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Error type checking helper functions

func isType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsInvalidStateError checks if an error is an invalid state error
func IsInvalidStateError(err error) bool {
	return isType(err, ErrorTypeInvalidState)
}

// IsInvalidTransitionError checks if an error is an invalid transition error
func IsInvalidTransitionError(err error) bool {
	return isType(err, ErrorTypeInvalidTransition)
}

// IsAlreadyTerminalError checks if an error is an expected lost-race outcome
func IsAlreadyTerminalError(err error) bool {
	return isType(err, ErrorTypeAlreadyTerminal)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return isType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return isType(err, ErrorTypeForbidden)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
