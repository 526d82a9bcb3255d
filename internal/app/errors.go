package app

import "fmt"

// Error codes surfaced to API clients.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeOwnership      = "OWNERSHIP_ERROR"
	CodeConflict       = "CONFLICT"
	CodeAlreadyApplied = "ALREADY_APPLIED"
	CodeUnauthorized   = "UNAUTHORIZED"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(422, CodeValidation, message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(404, CodeNotFound, message, nil)
}
