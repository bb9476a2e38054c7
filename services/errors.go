package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeResolution   ErrorType = "resolution"
	ErrorTypeEstimation   ErrorType = "estimation"
	ErrorTypeBudget       ErrorType = "budget"
	ErrorTypeSessionState ErrorType = "session_state"
)

// DenialReason enumerates why the ledger refused a request
type DenialReason string

const (
	ReasonNone                      DenialReason = ""
	ReasonPerRequestCeilingExceeded DenialReason = "per_request_ceiling_exceeded"
	ReasonDailyCeilingExceeded      DenialReason = "daily_ceiling_exceeded"
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

// Is matches on type, and on the reason detail when the target carries one.
// This lets errors.Is tell the two budget denials apart.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	want, ok := t.Details["reason"]
	if !ok {
		return true
	}
	return e.Details["reason"] == want
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

// Domain error variables. They are comparison targets for errors.Is;
// call sites build fresh instances through the constructors below.

var (
	// Not Found Errors
	ErrAliasNotFound = NewDomainError(ErrorTypeNotFound, "alias not found", nil)
	ErrUserNotFound  = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Validation Errors
	ErrInvalidInput  = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidSymbol = NewDomainError(ErrorTypeValidation, "symbol not found at market data provider", nil)
	ErrEmptyQuestion = NewDomainError(ErrorTypeValidation, "question cannot be empty", nil)

	// Permission Errors
	ErrForbidden  = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrNotAllowed = NewDomainError(ErrorTypeForbidden, "user is not on the allow-list", nil)
	ErrNotAdmin   = NewDomainError(ErrorTypeForbidden, "admin privileges required", nil)

	// Conflict Errors
	ErrAdminImmutable = NewDomainError(ErrorTypeConflict, "admin users cannot be revoked", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// Collaborator Errors
	ErrCollaboratorFailure = NewDomainError(ErrorTypeExternal, "collaborator call failed", nil)
	ErrQuoteUnavailable    = NewDomainError(ErrorTypeExternal, "market data unavailable", nil)
	ErrCompletionFailed    = NewDomainError(ErrorTypeExternal, "completion service failed", nil)

	// Workflow Errors
	ErrTickerNotResolved = NewDomainError(ErrorTypeResolution, "no known company found in text", nil)
	ErrEstimationFailed  = NewDomainError(ErrorTypeEstimation, "cost estimation failed", nil)
	ErrNoPendingAnalysis = NewDomainError(ErrorTypeSessionState, "no pending analysis", nil)

	// Budget Errors
	ErrBudgetExceeded            = NewDomainError(ErrorTypeBudget, "budget exceeded", nil)
	ErrPerRequestCeilingExceeded = NewDomainError(ErrorTypeBudget, "cost per request limit exceeded", nil).WithDetail("reason", ReasonPerRequestCeilingExceeded)
	ErrDailyCeilingExceeded      = NewDomainError(ErrorTypeBudget, "daily budget exceeded", nil).WithDetail("reason", ReasonDailyCeilingExceeded)
)

// NewPerRequestCeilingError reports an estimate above the per-request ceiling
func NewPerRequestCeilingError(estimate, ceiling decimal.Decimal) *DomainError {
	return NewDomainError(ErrorTypeBudget,
		fmt.Sprintf("estimated cost $%s exceeds the per-request limit of $%s", estimate.StringFixed(4), ceiling.StringFixed(4)), nil).
		WithDetail("reason", ReasonPerRequestCeilingExceeded).
		WithDetail("estimated_cost", estimate.String()).
		WithDetail("max_request_cost", ceiling.String())
}

// NewDailyCeilingError reports an estimate that would overrun the daily ceiling.
// The remaining budget is carried so callers can report it.
func NewDailyCeilingError(estimate, dailyCost, dailyLimit, remaining decimal.Decimal) *DomainError {
	return NewDomainError(ErrorTypeBudget,
		fmt.Sprintf("estimated cost $%s exceeds the remaining daily budget of $%s", estimate.StringFixed(4), remaining.StringFixed(4)), nil).
		WithDetail("reason", ReasonDailyCeilingExceeded).
		WithDetail("estimated_cost", estimate.String()).
		WithDetail("daily_cost", dailyCost.String()).
		WithDetail("daily_limit", dailyLimit.String()).
		WithDetail("remaining_budget", remaining.String())
}

// NewResolutionError reports that no alias matched the text
func NewResolutionError(text string) *DomainError {
	return NewDomainError(ErrorTypeResolution, "no known company found in text", nil).
		WithDetail("text", text)
}

// NewEstimationError reports a tokenizer or price table failure
func NewEstimationError(model string, err error) *DomainError {
	return NewDomainError(ErrorTypeEstimation, "cost estimation failed", err).
		WithDetail("model", model)
}

// NewCollaboratorError wraps a failed outbound call
func NewCollaboratorError(collaborator string, err error) *DomainError {
	return NewDomainError(ErrorTypeExternal, collaborator+" call failed", err).
		WithDetail("collaborator", collaborator)
}

// NewNoPendingError reports a confirmation with nothing to confirm
func NewNoPendingError(userID string) *DomainError {
	return NewDomainError(ErrorTypeSessionState, "no pending analysis", nil).
		WithDetail("user_id", userID)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is a collaborator failure
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsResolutionError checks if an error is a ticker resolution failure
func IsResolutionError(err error) bool {
	return GetErrorType(err) == ErrorTypeResolution
}

// IsEstimationError checks if an error is an estimation failure
func IsEstimationError(err error) bool {
	return GetErrorType(err) == ErrorTypeEstimation
}

// IsBudgetError checks if an error is a budget denial
func IsBudgetError(err error) bool {
	return GetErrorType(err) == ErrorTypeBudget
}

// IsSessionStateError checks if an error is a session state error
func IsSessionStateError(err error) bool {
	return GetErrorType(err) == ErrorTypeSessionState
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

// GetDenialReason returns the budget denial reason carried by err
func GetDenialReason(err error) DenialReason {
	if !IsBudgetError(err) {
		return ReasonNone
	}
	reason, _ := GetErrorDetails(err)["reason"].(DenialReason)
	return reason
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as a collaborator failure
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
