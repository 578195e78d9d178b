// Package domainerrors carries typed, transport-agnostic failures from services
// to adapters. Services return *Error values; HTTP adapters map the Code to a
// status with ToHTTPStatus and render the Message to the client.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure. Codes are stable and appear on the wire.
type Code string

const (
	// Generic codes.
	CodeBadRequest Code = "bad_request"
	CodeInternal   Code = "internal_error"
	CodeTimeout    Code = "timeout"

	// Date policy.
	CodeInvalidDate     Code = "invalid_date"
	CodePastOrTodayDate Code = "past_or_today_date"
	CodePastDate        Code = "past_date"
	CodeSameDayDeletion Code = "same_day_deletion"

	// Existence.
	CodeEmployeeNotFound   Code = "employee_not_found"
	CodeVehicleNotFound    Code = "vehicle_not_found"
	CodeAllocationNotFound Code = "allocation_not_found"
	CodeNoMatchingRecords  Code = "no_matching_records"

	// Lifecycle.
	CodeNotAuthorized        Code = "not_authorized"
	CodeEmployeeDoubleBooked Code = "employee_double_booked"
	CodeVehicleDoubleBooked  Code = "vehicle_double_booked"
	CodeNoChange             Code = "no_change"

	// Record store unavailable or a write that was not applied.
	CodeStoreFailure Code = "store_failure"
)

// Error is a domain failure with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a domain error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err carries code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status class.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeEmployeeNotFound, CodeVehicleNotFound, CodeAllocationNotFound, CodeNoMatchingRecords:
		return http.StatusNotFound
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeBadRequest, CodeInvalidDate, CodePastOrTodayDate, CodePastDate, CodeSameDayDeletion,
		CodeEmployeeDoubleBooked, CodeVehicleDoubleBooked, CodeNoChange:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
