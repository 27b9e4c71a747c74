// Package nabi defines the kernel's error taxonomy: a small, fixed set of
// error kinds that every public API surfaces instead of ad-hoc error
// strings, plus the Is<Kind> helpers callers use at ABI boundaries.
package nabi

import "fmt"

// Kind identifies the class of failure behind an Error. Kernel code and the
// ABI multiplex (internal/abi) both switch on Kind, never on error text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgs
	KindNotFound
	KindAccessDenied
	KindWrongType
	KindShouldWait
	KindPeerClosed
	KindNoMemory
	KindNoResources
	KindOutOfBounds
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgs:
		return "invalid_args"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindWrongType:
		return "wrong_type"
	case KindShouldWait:
		return "should_wait"
	case KindPeerClosed:
		return "peer_closed"
	case KindNoMemory:
		return "no_memory"
	case KindNoResources:
		return "no_resources"
	case KindOutOfBounds:
		return "out_of_bounds"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// kindError is the concrete error type produced by the constructors below.
// It is unexported; callers interact with it via Kind() and the Is* helpers.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Kind() Kind { return e.kind }

func (e *kindError) Unwrap() error { return nil }

// Kinder is implemented by any error produced through this package, and by
// wrapping errors that forward Kind() to an underlying cause.
type Kinder interface {
	Kind() Kind
}

// KindOf walks err looking for a Kind, the way errdefs.GetType does for
// moby's error classes. Returns KindUnknown if none is found.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ke, ok := err.(Kinder); ok {
			return ke.Kind()
		}
		u, ok := err.(unwrapper)
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

func newf(k Kind, format string, args ...interface{}) error {
	return &kindError{kind: k, msg: fmt.Sprintf(format, args...)}
}

func InvalidArgs(format string, args ...interface{}) error  { return newf(KindInvalidArgs, format, args...) }
func NotFound(format string, args ...interface{}) error     { return newf(KindNotFound, format, args...) }
func AccessDenied(format string, args ...interface{}) error { return newf(KindAccessDenied, format, args...) }
func WrongType(format string, args ...interface{}) error    { return newf(KindWrongType, format, args...) }
func ShouldWait(format string, args ...interface{}) error   { return newf(KindShouldWait, format, args...) }
func PeerClosed(format string, args ...interface{}) error   { return newf(KindPeerClosed, format, args...) }
func NoMemory(format string, args ...interface{}) error     { return newf(KindNoMemory, format, args...) }
func NoResources(format string, args ...interface{}) error  { return newf(KindNoResources, format, args...) }
func OutOfBounds(format string, args ...interface{}) error  { return newf(KindOutOfBounds, format, args...) }
func Internal(format string, args ...interface{}) error     { return newf(KindInternal, format, args...) }

func IsInvalidArgs(err error) bool  { return KindOf(err) == KindInvalidArgs }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }
func IsWrongType(err error) bool    { return KindOf(err) == KindWrongType }
func IsShouldWait(err error) bool   { return KindOf(err) == KindShouldWait }
func IsPeerClosed(err error) bool   { return KindOf(err) == KindPeerClosed }
func IsNoMemory(err error) bool     { return KindOf(err) == KindNoMemory }
func IsNoResources(err error) bool  { return KindOf(err) == KindNoResources }
func IsOutOfBounds(err error) bool  { return KindOf(err) == KindOutOfBounds }
func IsInternal(err error) bool     { return KindOf(err) == KindInternal }

// Status packs a Kind into the u32 layout the ABI multiplex uses for
// Result<u32> returns: low 32 bits carry the Ok value, high 32 bits carry
// the error discriminant when the call failed. Status values themselves
// are small, stable integers so compiled wasm code can switch on them.
type Status uint32

const (
	StatusOK Status = iota
	StatusInvalidArgs
	StatusNotFound
	StatusAccessDenied
	StatusWrongType
	StatusShouldWait
	StatusPeerClosed
	StatusNoMemory
	StatusNoResources
	StatusOutOfBounds
	StatusInternal
)

var kindStatus = map[Kind]Status{
	KindUnknown:      StatusInternal,
	KindInvalidArgs:  StatusInvalidArgs,
	KindNotFound:     StatusNotFound,
	KindAccessDenied: StatusAccessDenied,
	KindWrongType:    StatusWrongType,
	KindShouldWait:   StatusShouldWait,
	KindPeerClosed:   StatusPeerClosed,
	KindNoMemory:     StatusNoMemory,
	KindNoResources:  StatusNoResources,
	KindOutOfBounds:  StatusOutOfBounds,
	KindInternal:     StatusInternal,
}

// StatusOf converts err (nil or otherwise) into the Status the ABI
// multiplex packs into a call's high 32 bits.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	return kindStatus[KindOf(err)]
}
