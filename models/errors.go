package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout            = "BEHAVIOR_TIMEOUT"
	ErrCodeNavigation         = "NAVIGATION_FAILED"
	ErrCodeStructuralMismatch = "STRUCTURAL_MISMATCH"
	ErrCodeBrowserCrash       = "BROWSER_CRASH"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BehaviorError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
//
// Structural mismatches (ErrCodeStructuralMismatch) are terminal for the
// current page: the assumed DOM or framework shape is gone, so the behavior
// run must be abandoned rather than retried. Transient absence of content is
// never reported through this type; the engine waits it out internally.
type BehaviorError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *BehaviorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BehaviorError) Unwrap() error {
	return e.Err
}

// NewBehaviorError creates a new BehaviorError.
func NewBehaviorError(code, message string, err error) *BehaviorError {
	return &BehaviorError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *BehaviorError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
