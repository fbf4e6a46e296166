package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a failure category.
type Kind string

const (
	// InvalidInput: a missing or malformed argument, or a statement of the
	// wrong category for the operation.
	InvalidInput Kind = "InvalidInput"

	// InternalError: anything that went wrong in the driver or the pool.
	InternalError Kind = "InternalError"

	// UnknownOperation: no operation is registered under the requested name.
	UnknownOperation Kind = "UnknownOperation"

	// InvalidRequest: the argument bag has the wrong shape, or there is no
	// configuration to build a pool from.
	InvalidRequest Kind = "InvalidRequest"

	// InvalidConfig: a configuration source that cannot be used.
	InvalidConfig Kind = "InvalidConfig"
)

// Failure is the only error type returned by Dispatcher methods.
type Failure struct {
	Kind    Kind
	Message string

	// Err is the underlying cause, if any. It is recorded in the diagnostic
	// log even when Message hides it.
	Err error

	// SQL and Params are the statement that failed, when there was one.
	SQL    string
	Params []any
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Cause is the most detailed description of what went wrong.
func (f *Failure) Cause() string {
	if f.Err == nil {
		return f.Message
	}
	if strings.Contains(f.Message, f.Err.Error()) {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func failure(kind Kind, msg string) *Failure {
	return &Failure{Kind: kind, Message: msg}
}

func failuref(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the Failure in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// ErrorDetail decides how much of a driver error reaches the caller.
type ErrorDetail string

const (
	// ErrorDetailRaw includes the driver message in InternalError failures.
	ErrorDetailRaw ErrorDetail = "raw"

	// ErrorDetailGeneric replaces it with a fixed message.
	ErrorDetailGeneric ErrorDetail = "generic"
)

// genericMessage is shown in place of driver detail under ErrorDetailGeneric.
const genericMessage = "database operation failed, please contact the administrator"

// ParseErrorDetail accepts "raw" or "generic" in any case. Empty means raw.
func ParseErrorDetail(s string) (ErrorDetail, error) {
	switch ErrorDetail(strings.ToLower(strings.TrimSpace(s))) {
	case "", ErrorDetailRaw:
		return ErrorDetailRaw, nil
	case ErrorDetailGeneric:
		return ErrorDetailGeneric, nil
	default:
		return "", fmt.Errorf("unknown error detail %q. Expected 'raw' or 'generic'", s)
	}
}
