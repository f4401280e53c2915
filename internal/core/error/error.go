package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// MemoryErrorMessage describes long-term memory persistence failures.
	MemoryErrorMessage = "memory store operation failed"
	// OracleErrorMessage describes reasoning-service failures.
	OracleErrorMessage = "language model invocation failed"
	// SandboxErrorMessage describes sandbox provisioning failures.
	SandboxErrorMessage = "sandbox execution failed"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// ContractViolation signals that a stage was entered in an unsupported state
// configuration, e.g. a required state slot that a prior stage should have
// populated is still empty. These must fail loudly and never route.
type ContractViolation struct {
	Slot  string
	Stage string
}

// Error implements the error interface.
func (e *ContractViolation) Error() string {
	return fmt.Sprintf("'%s' state must not be empty in '%s' node", e.Slot, e.Stage)
}

// NewContractViolation reports an empty required state slot for a stage.
func NewContractViolation(slot, stage string) error {
	return &ContractViolation{Slot: slot, Stage: stage}
}

// IsContractViolation reports whether err carries a ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}

// WrapMemory wraps a long-term memory store error.
func WrapMemory(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, MemoryErrorMessage)
}

// WrapOracle wraps a reasoning-service transport error.
func WrapOracle(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, OracleErrorMessage)
}

// WrapSandbox wraps a sandbox provisioning or transport error.
func WrapSandbox(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, SandboxErrorMessage)
}
