package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced by the gateway. Absent objects and failed
// preconditions are not errors; they are nil / metadata-only returns.
const (
	CodeKeyInvalid             = "KeyInvalid"
	CodeOptionInvalid          = "OptionInvalid"
	CodeRangeNotSatisfiable    = "RangeNotSatisfiable"
	CodeValueTooLarge          = "ValueTooLarge"
	CodeIntegrityMismatch      = "IntegrityMismatch"
	CodePayloadTypeUnsupported = "PayloadTypeUnsupported"
	CodeListLimitInvalid       = "ListLimitInvalid"
	CodeTraversal              = "Traversal"
	CodeNamespaceCollision     = "NamespaceCollision"
	CodeInternal               = "Internal"
)

// Error is a gateway failure with a stable code and an HTTP-like status
// class for callers that need wire semantics.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func errf(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func keyInvalid(format string, args ...any) *Error {
	return errf(CodeKeyInvalid, http.StatusBadRequest, format, args...)
}

func optionInvalid(format string, args ...any) *Error {
	return errf(CodeOptionInvalid, http.StatusBadRequest, format, args...)
}

func rangeNotSatisfiable(format string, args ...any) *Error {
	return errf(CodeRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable, format, args...)
}

// StatusOf returns the HTTP-like status for err, or 500 for anything that is
// not a gateway Error.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the stable code for err, or CodeInternal.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}
