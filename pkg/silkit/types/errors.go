package types

import "fmt"

// Kind classifies a Fault by the taxonomy the core reports to callers.
type Kind int

const (
	// Configuration covers malformed or semantically invalid configuration,
	// surfaced at construction time.
	Configuration Kind = iota
	// Protocol covers wire-format violations or version mismatches. Tears
	// down the offending connection without terminating the participant.
	Protocol
	// StateError covers an operation attempted in an invalid lifecycle state.
	StateError
	// Transport covers I/O failure on a peer connection.
	Transport
	// Timeout is reserved for connection establishment only.
	Timeout
	// Abort is returned by blocking primitives once AbortSimulation fires.
	Abort
	// Internal covers invariants violated inside the core; always surfaces
	// as a lifecycle Error state.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "ConfigurationError"
	case Protocol:
		return "ProtocolError"
	case StateError:
		return "StateError"
	case Transport:
		return "TransportError"
	case Timeout:
		return "TimeoutError"
	case Abort:
		return "AbortError"
	case Internal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Fault is the typed error every core API boundary returns. Collaborators
// receive results, never exceptions; internal dispatch tasks catch any
// fault, log it with the originating handler's identifier, and translate
// it into a lifecycle transition where appropriate.
type Fault struct {
	Kind   Kind
	Origin string
	Err    error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Origin)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Origin, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault builds a Fault of the given kind, attributing it to origin
// (typically the handler or component name) and wrapping cause.
func NewFault(kind Kind, origin string, cause error) *Fault {
	return &Fault{Kind: kind, Origin: origin, Err: cause}
}

func IsKind(err error, kind Kind) bool {
	var f *Fault
	for err != nil {
		if asFault, ok := err.(*Fault); ok {
			f = asFault
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return f != nil && f.Kind == kind
}
