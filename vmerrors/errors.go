// Package vmerrors defines the typed error kinds the message applier and
// its collaborators raise: NotFound/Decode/Io/Inconsistent are ordinary,
// recoverable errors; VmAbort carries an exit code across a send boundary;
// Fatal short-circuits ApplyMessage entirely, with no receipt produced.
package vmerrors

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"
)

// Kind discriminates the handful of error shapes the VM needs to tell
// apart when deciding whether a failure is recoverable.
type Kind int

const (
	KindNotFound Kind = iota
	KindDecode
	KindIo
	KindInconsistent
	KindVmAbort
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindDecode:
		return "decode"
	case KindIo:
		return "io"
	case KindInconsistent:
		return "inconsistent"
	case KindVmAbort:
		return "vm-abort"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the concrete type every constructor in this package returns.
// ExitCode is only meaningful when Kind is KindVmAbort.
type Error struct {
	Kind     Kind
	ExitCode exitcode.ExitCode
	msg      string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// IsFatal reports whether err (or anything it wraps) is a Fatal error.
func IsFatal(err error) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindFatal
}

// AsAbort extracts the VmAbort error in err's chain, if any.
func AsAbort(err error) (*Error, bool) {
	var e *Error
	if xerrors.As(err, &e) && e.Kind == KindVmAbort {
		return e, true
	}
	return nil, false
}

// RetCode returns the exit code carried by a VmAbort error in err's
// chain, or exitcode.Ok if none is found.
func RetCode(err error) exitcode.ExitCode {
	if e, ok := AsAbort(err); ok {
		return e.ExitCode
	}
	return exitcode.Ok
}

// NotFound wraps a missing-block or missing-actor condition.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// Decode wraps a CBOR or address decoding failure.
func Decode(cause error, format string, args ...interface{}) error {
	return &Error{Kind: KindDecode, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Io wraps a block store or disk failure.
func Io(cause error, format string, args ...interface{}) error {
	return &Error{Kind: KindIo, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Inconsistent wraps a violated state-tree or tipset invariant.
func Inconsistent(format string, args ...interface{}) error {
	return &Error{Kind: KindInconsistent, msg: fmt.Sprintf(format, args...)}
}

// Abort constructs a VmAbort carrying code, the exit code an invocation
// unwinds with up to its enclosing Send boundary.
func Abort(code exitcode.ExitCode, format string, args ...interface{}) error {
	return &Error{Kind: KindVmAbort, ExitCode: code, msg: fmt.Sprintf(format, args...)}
}

// Fatal wraps an error that must abort the whole message application with
// no receipt, matching the original's hard BOOST_ASSERT_MSG aborts.
func Fatal(cause error, format string, args ...interface{}) error {
	return &Error{Kind: KindFatal, msg: fmt.Sprintf(format, args...), cause: cause}
}
