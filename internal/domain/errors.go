package domain

import (
	"errors"
	"fmt"
)

// Kind buckets every failure the scanner and executor can produce so that
// callers can decide between retrying, skipping the unit of work, or aborting.
type Kind string

const (
	KindConfig       Kind = "config"
	KindRateLimit    Kind = "exchange_rate_limit"
	KindTransient    Kind = "exchange_transient"
	KindFatal        Kind = "exchange_fatal"
	KindDataShape    Kind = "data_shape"
	KindInvalidSetup Kind = "invalid_setup"
	KindGateReject   Kind = "gate_rejection"
	KindPolicyBlock  Kind = "policy_block"
	KindExecutor     Kind = "executor_failure"
)

// Error attaches a Kind to a failure. The zero Kind means unclassified.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error from a message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef builds a classified error from a format string.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr classifies an underlying error without losing the chain.
func WrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf walks the error chain and returns the first classification found.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether the failure is worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransient:
		return true
	}
	return false
}
