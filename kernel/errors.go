package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

// Kind classifies kernel failures by how they are handled.
type Kind int

const (
	// KindInternal is a bug in the kernel itself. Logged; the loop continues
	// when it can.
	KindInternal Kind = iota
	// KindProtocol is a malformed wire message. Dropped.
	KindProtocol
	// KindAuth is a signature mismatch. Dropped without reply.
	KindAuth
	// KindUserCode is an error raised by evaluated code.
	KindUserCode
	// KindFormatter is a display rendering failure.
	KindFormatter
	// KindDispatch is an unknown message type.
	KindDispatch
	// KindConfiguration is a setup failure: bad connection info, no
	// transport provider, unknown backend.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindAuth:
		return "AuthError"
	case KindUserCode:
		return "UserCodeError"
	case KindFormatter:
		return "FormatterError"
	case KindDispatch:
		return "DispatchError"
	case KindConfiguration:
		return "ConfigurationError"
	default:
		return "InternalError"
	}
}

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	ErrProtocol      = errors.New("protocol error")
	ErrAuth          = errors.New("auth error")
	ErrDispatch      = errors.New("dispatch error")
	ErrInternal      = errors.New("internal error")
	ErrConfiguration = errors.New("configuration error")

	ErrNotServing = errors.New("kernel is not serving")
	ErrServing    = errors.New("kernel is already serving")
)

var kindSentinels = map[Kind]error{
	KindProtocol:      ErrProtocol,
	KindAuth:          ErrAuth,
	KindDispatch:      ErrDispatch,
	KindInternal:      ErrInternal,
	KindConfiguration: ErrConfiguration,
}

// Error is a classified kernel failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// wrap classifies err under op. An err that is already an *Error keeps its
// kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke *Error
	if errors.As(err, &ke) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	var be *backend.Error
	switch {
	case errors.Is(err, transport.ErrProtocol):
		return KindProtocol
	case errors.Is(err, transport.ErrAuth):
		return KindAuth
	case errors.Is(err, transport.ErrConfiguration),
		errors.Is(err, backend.ErrNotFound):
		return KindConfiguration
	case errors.As(err, &be), errors.Is(err, context.Canceled):
		return KindUserCode
	default:
		return KindInternal
	}
}
