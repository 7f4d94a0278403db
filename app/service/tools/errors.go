package tools

import (
	"github.com/samber/oops"
)

// Error codes carried on oops errors produced anywhere in the tool pipeline.
// Retry classification is by code, never by message text.
const (
	CodeValidation            = "validation"
	CodeAuthorization         = "authorization"
	CodeCircuitOpen           = "circuit_open"
	CodeTimeout               = "timeout"
	CodeTransient             = "transient"
	CodeDependencyUnsatisfied = "dependency_unsatisfied"
	CodeEmptyResponse         = "empty_response"
)

// CodeOf returns the taxonomy code of err, or "" for unclassified errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if o, ok := oops.AsOops(err); ok {
		code, _ := o.Code().(string)
		return code
	}
	return ""
}

// IsRetryable reports whether a failed call may be attempted again.
// Unclassified errors are presumed transient; handlers opt out by
// tagging validation/authorization failures explicitly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch CodeOf(err) {
	case CodeValidation, CodeAuthorization, CodeCircuitOpen, CodeDependencyUnsatisfied:
		return false
	default:
		return true
	}
}
