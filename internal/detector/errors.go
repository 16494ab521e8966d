package detector

import (
	"errors"
	"fmt"
)

// RuntimeError represents a recovered failure during a detection pass.
//
// Runtime errors never abort a pass. They are collected in Report.Errors
// so callers can surface them.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Strategy is the strategy that failed, if any.
	Strategy string

	// Seq identifies the record being evaluated (detect errors only).
	Seq int

	// GroupID identifies the group being described (describe errors only).
	GroupID string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDetectFailed indicates Strategy.Detect returned an error.
	ErrCodeDetectFailed RuntimeErrorCode = "DETECT_FAILED"

	// ErrCodeDescribeFailed indicates Strategy.Describe returned an error.
	ErrCodeDescribeFailed RuntimeErrorCode = "DESCRIBE_FAILED"

	// ErrCodePanic indicates a strategy panicked.
	ErrCodePanic RuntimeErrorCode = "STRATEGY_PANIC"

	// ErrCodeInvalidOperation indicates the input operation failed validation.
	ErrCodeInvalidOperation RuntimeErrorCode = "INVALID_OPERATION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Strategy != "" && e.GroupID != "":
		return fmt.Sprintf("%s: %s (strategy=%s, group=%s)", e.Code, e.Message, e.Strategy, e.GroupID)
	case e.Strategy != "":
		return fmt.Sprintf("%s: %s (strategy=%s, seq=%d)", e.Code, e.Message, e.Strategy, e.Seq)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsDetectError returns true if err is a recovered Detect failure.
func IsDetectError(err error) bool {
	return hasCode(err, ErrCodeDetectFailed)
}

// IsDescribeError returns true if err is a recovered Describe failure.
func IsDescribeError(err error) bool {
	return hasCode(err, ErrCodeDescribeFailed)
}

// IsPanicError returns true if err is a recovered strategy panic.
func IsPanicError(err error) bool {
	return hasCode(err, ErrCodePanic)
}

// IsInvalidOperation returns true if err reports a rejected input operation.
// Uses errors.As to handle wrapped errors.
func IsInvalidOperation(err error) bool {
	return hasCode(err, ErrCodeInvalidOperation)
}
