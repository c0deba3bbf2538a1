package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrPaymentAlreadyResolved = errors.New("payment already resolved")
	ErrOptimisticLockFailed   = errors.New("optimistic lock conflict")

	// Shopping list errors
	ErrShoppingListNotFound   = errors.New("shopping list not found")
	ErrShoppingListFrozen     = errors.New("shopping list is no longer editable")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Transaction errors
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("a pending transaction already exists for this reference")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidReference     = errors.New("invalid transaction reference")

	// Agent errors
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentUnavailable   = errors.New("agent is not available")
	ErrAssignmentConflict = errors.New("order was concurrently assigned to another agent")
	ErrNoAgentsAvailable  = errors.New("no agents available")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrProviderTimeout     = errors.New("provider request timeout")

	// Queue errors
	ErrJobDuplicate       = errors.New("job with the same dedupe key is outstanding")
	ErrMaxAttemptsReached = errors.New("max job attempts reached")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("actor lacks permission for this transition")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
