package tools

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a recoverable agent failure. Every code surfaces
// to the user as a readable message plus the machine-readable code; none
// of them crash the session.
type ErrorCode string

const (
	ErrUnknownTool          ErrorCode = "UnknownTool"
	ErrInvalidParams        ErrorCode = "InvalidParams"
	ErrForbidden            ErrorCode = "Forbidden"
	ErrUnresolvedBinding    ErrorCode = "UnresolvedBinding"
	ErrStoreError           ErrorCode = "StoreError"
	ErrPlanMatchAmbiguous   ErrorCode = "PlanMatchAmbiguous"
	ErrConfirmationRejected ErrorCode = "ConfirmationRejected"
)

// AgentError is a classified, user-surfaceable failure.
type AgentError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error { return e.cause }

// NewError builds an AgentError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error under code.
func WrapError(code ErrorCode, err error, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// AsAgentError extracts an AgentError from err, classifying anything
// else as a StoreError.
func AsAgentError(err error) *AgentError {
	if err == nil {
		return nil
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae
	}
	return &AgentError{Code: ErrStoreError, Message: err.Error(), cause: err}
}
