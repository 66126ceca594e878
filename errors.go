package hanabi

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Reason tags a library-facing error with a stable, comparable category, per
// the error taxonomy in the specification (protocol errors are mapped to
// numerics by the handler; these reasons are for library callers).
type Reason string

// The complete set of reasons a User/Channel store operation can fail with.
const (
	ReasonNoSuchUser        Reason = "no_such_user"
	ReasonNoSuchChannel     Reason = "no_such_channel"
	ReasonNotOnChannel      Reason = "notonchannel"
	ReasonNickInUse         Reason = "nick_in_use"
	ReasonErroneousNick     Reason = "erroneous_nick"
	ReasonNeedMoreParams    Reason = "needmoreparams"
	ReasonAlreadyRegistered Reason = "alreadyregistered"
	ReasonInvalidSink       Reason = "invalid_sink"
	ReasonKeyInUse          Reason = "key_in_use"
	ReasonSinkClosed        Reason = "sink_closed"
)

// Error is the tagged {err, reason} value library callers receive from
// registry and user/channel operations. It wraps an underlying cause (via
// github.com/pkg/errors) for logging, while exposing Reason for callers that
// need to branch on the failure category.
type Error struct {
	Reason Reason
	cause  error
}

func newError(reason Reason, msg string) *Error {
	return &Error{Reason: reason, cause: errors.New(msg)}
}

func wrapError(reason Reason, cause error, msg string) *Error {
	return &Error{Reason: reason, cause: errors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Reason)
	}
	return e.cause.Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As and for
// github.com/pkg/errors's Cause().
func (e *Error) Unwrap() error { return e.cause }

// ReasonOf reports the Reason tagged on err and true if err is (or wraps) a
// *Error, or ("", false) otherwise — the way callers branch on a store
// operation's failure category instead of matching on error strings.
func ReasonOf(err error) (Reason, bool) {
	var herr *Error
	if stderrors.As(err, &herr) {
		return herr.Reason, true
	}
	return "", false
}
