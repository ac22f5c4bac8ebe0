// Package clerr defines the error kinds that the clist writer and reader
// surface, per the propagation policy of the command-list spool format: I/O
// failures during a write put the writer into a permanent, sticky error
// state, while parameter-parsing errors and limit checks are returned to the
// caller without persisting any state.
package clerr

import "fmt"

// Kind is one of the error kinds a clist writer or reader can report.
type Kind int

const (
	// KindNone is the zero value; Of returns it for a nil error.
	KindNone Kind = iota

	// KindIO means a file operation (write, seek, read) failed.
	KindIO

	// KindOutOfMemory means a buffer allocation or resize failed.
	KindOutOfMemory

	// KindRangeCheck means a value was outside its encodable range (too many
	// color components, a tile too large to fit without decompress-elsewhere,
	// and so on).
	KindRangeCheck

	// KindLimitCheck means a compressed bitmap exceeded the per-command size
	// limit; the caller is expected to split the transfer and retry.
	KindLimitCheck

	// KindTypeCheck means the parameter parser encountered a value of the
	// wrong type.
	KindTypeCheck

	// KindSyntaxError means the parameter parser encountered malformed input.
	KindSyntaxError

	// KindUnregistered means an internal invariant was broken. This should
	// never happen in a correct caller; it indicates a bug.
	KindUnregistered

	// KindInterrupt means cooperative cancellation was requested.
	KindInterrupt
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindOutOfMemory:
		return "out of memory"
	case KindRangeCheck:
		return "range check"
	case KindLimitCheck:
		return "limit check"
	case KindTypeCheck:
		return "type check"
	case KindSyntaxError:
		return "syntax error"
	case KindUnregistered:
		return "unregistered (internal invariant violated)"
	case KindInterrupt:
		return "interrupt"
	default:
		return "no error"
	}
}

// Error makes a bare Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error wraps a Kind with a message and an optional underlying cause. It
// satisfies errors.Is against a bare Kind and errors.As against *Error.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "bandwriter.Flush"
	Msg  string
	Err  error // optional underlying cause, e.g. an *os.PathError
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the same Kind as e, so that callers can write
// errors.Is(err, clerr.KindLimitCheck) without type-asserting *Error first.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// New constructs an *Error for the given kind, operation and message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error that carries an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err: KindNone if err is nil, and KindUnregistered if
// err does not wrap a *Error.
func Of(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return KindUnregistered
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Bug formats a KindUnregistered error for an invariant violation, following
// the convention that these should never happen in a correct caller.
func Bug(op, format string, args ...any) *Error {
	return New(KindUnregistered, op, fmt.Sprintf(format, args...))
}
