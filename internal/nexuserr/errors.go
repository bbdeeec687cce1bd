// Package nexuserr defines the unified error vocabulary shared across Nexus
// Core components: stable string codes, HTTP status mapping, and structured
// context for observability.
package nexuserr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error classification.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNoActivePrompt    Code = "NO_ACTIVE_PROMPT"
	CodeBudgetExceeded    Code = "BUDGET_EXCEEDED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeProviderError     Code = "PROVIDER_ERROR"
	CodeToolExecution     Code = "TOOL_EXECUTION_ERROR"
	CodeToolNotAllowed    Code = "TOOL_NOT_ALLOWED"
	CodeApprovalDenied    Code = "APPROVAL_DENIED"
	CodeApprovalExpired   Code = "APPROVAL_EXPIRED"
	CodeMCPConnection     Code = "MCP_CONNECTION_ERROR"
	CodeMCPToolExecution  Code = "MCP_TOOL_EXECUTION_ERROR"
	CodeMCPTimeout        Code = "MCP_TIMEOUT"
	CodeSecretNotFound    Code = "SECRET_NOT_FOUND"
	CodeInternal          Code = "INTERNAL"
)

// statusByCode maps each Code to its default HTTP status.
var statusByCode = map[Code]int{
	CodeValidation:       400,
	CodeNotFound:         404,
	CodeUnauthorized:     401,
	CodeForbidden:        403,
	CodeNoActivePrompt:   409,
	CodeBudgetExceeded:   429,
	CodeRateLimited:      429,
	CodeProviderError:    502,
	CodeToolExecution:    500,
	CodeToolNotAllowed:   403,
	CodeApprovalDenied:   403,
	CodeApprovalExpired:  410,
	CodeMCPConnection:    502,
	CodeMCPToolExecution: 502,
	CodeMCPTimeout:       504,
	CodeSecretNotFound:   404,
	CodeInternal:         500,
}

// Error is the structured error type returned by every Nexus Core component.
// It carries a stable Code, an optional wrapped Cause, and structured
// Context for logging/tracing, and is designed to traverse errors.Is/As.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Cause      error
	Context    map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error for the given code with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusByCode[code]}
}

// Wrap constructs an *Error wrapping cause under the given code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusByCode[code], Cause: cause}
}

// WithContext attaches structured context fields and returns the receiver
// for chaining.
func (e *Error) WithContext(kv ...any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Context[key] = kv[i+1]
	}
	return e
}

// CodeOf extracts the Code from err, or CodeInternal if err is not (or does
// not wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status code for err, defaulting to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if e.StatusCode != 0 {
			return e.StatusCode
		}
	}
	return 500
}
