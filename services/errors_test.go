package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "user not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: user not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
				Err:     nil,
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	unwrapped := errors.Unwrap(domainErr)
	assert.Equal(t, baseErr, unwrapped)
}

func TestDomainError_Is(t *testing.T) {
	t.Run("matches on type", func(t *testing.T) {
		err := NewResolutionError("hello")
		assert.True(t, errors.Is(err, ErrTickerNotResolved))
		assert.False(t, errors.Is(err, ErrEstimationFailed))
	})

	t.Run("budget denials are told apart by reason", func(t *testing.T) {
		daily := NewDailyCeilingError(decimal.RequireFromString("0.08"), decimal.RequireFromString("0.95"),
			decimal.RequireFromString("1.00"), decimal.RequireFromString("0.05"))
		perRequest := NewPerRequestCeilingError(decimal.RequireFromString("0.20"), decimal.RequireFromString("0.10"))

		assert.True(t, errors.Is(daily, ErrDailyCeilingExceeded))
		assert.False(t, errors.Is(daily, ErrPerRequestCeilingExceeded))
		assert.True(t, errors.Is(perRequest, ErrPerRequestCeilingExceeded))
		assert.False(t, errors.Is(perRequest, ErrDailyCeilingExceeded))

		// the generic sentinel carries no reason and matches both
		assert.True(t, errors.Is(daily, ErrBudgetExceeded))
		assert.True(t, errors.Is(perRequest, ErrBudgetExceeded))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("confirm: %w", NewNoPendingError("42"))
		assert.True(t, errors.Is(wrapped, ErrNoPendingAnalysis))
		assert.True(t, IsSessionStateError(wrapped))
	})
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Type: ErrorTypeValidation, Message: "bad"}
	err.WithDetail("field", "symbol").WithDetail("value", "??")

	assert.Equal(t, "symbol", err.Details["field"])
	assert.Equal(t, "??", err.Details["value"])
}

func TestNewDailyCeilingError(t *testing.T) {
	err := NewDailyCeilingError(decimal.RequireFromString("0.08"), decimal.RequireFromString("0.95"),
		decimal.RequireFromString("1.00"), decimal.RequireFromString("0.05"))

	assert.Equal(t, ReasonDailyCeilingExceeded, GetDenialReason(err))
	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "0.05", details["remaining_budget"])
	assert.Equal(t, "0.95", details["daily_cost"])
	assert.Contains(t, err.Error(), "$0.0500")
}

func TestNewPerRequestCeilingError(t *testing.T) {
	err := NewPerRequestCeilingError(decimal.RequireFromString("0.2"), decimal.RequireFromString("0.1"))

	assert.Equal(t, ReasonPerRequestCeilingExceeded, GetDenialReason(err))
	assert.Equal(t, "0.1", GetErrorDetails(err)["max_request_cost"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrAliasNotFound, IsNotFoundError},
		{"validation", ErrInvalidSymbol, IsValidationError},
		{"forbidden", ErrNotAdmin, IsForbiddenError},
		{"conflict", ErrAdminImmutable, IsConflictError},
		{"internal", WrapInternal("save", errors.New("disk full")), IsInternalError},
		{"external", NewCollaboratorError("completion", errors.New("503")), IsExternalError},
		{"resolution", NewResolutionError("x"), IsResolutionError},
		{"estimation", NewEstimationError("gpt-5", nil), IsEstimationError},
		{"budget", ErrBudgetExceeded, IsBudgetError},
		{"session state", ErrNoPendingAnalysis, IsSessionStateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestGetErrorType_NonDomain(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, ErrorType(""), GetErrorType(plain))
	assert.Nil(t, GetErrorDetails(plain))
	assert.Equal(t, ReasonNone, GetDenialReason(plain))
	assert.Equal(t, ReasonNone, GetDenialReason(ErrNoPendingAnalysis))
}

func TestNewCollaboratorError(t *testing.T) {
	cause := errors.New("timeout")
	err := NewCollaboratorError("market", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "market", GetErrorDetails(err)["collaborator"])
	assert.Equal(t, "external: market call failed (timeout)", err.Error())
}
