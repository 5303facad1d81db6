package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with context and
// classify with errors.Is or Kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidState      = errors.New("invalid state")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrEngine            = errors.New("engine error")
	ErrBackpressure      = errors.New("backpressure")
)

// ErrorKind names an entry of the taxonomy.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "NotFound"
	KindAlreadyExists     ErrorKind = "AlreadyExists"
	KindInvalidState      ErrorKind = "InvalidState"
	KindNegotiationFailed ErrorKind = "NegotiationFailed"
	KindEngine            ErrorKind = "EngineError"
	KindBackpressure      ErrorKind = "Backpressure"
	KindUnknown           ErrorKind = "Unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidState, KindInvalidState},
	{ErrNegotiationFailed, KindNegotiationFailed},
	{ErrEngine, KindEngine},
	{ErrBackpressure, KindBackpressure},
}

// Kind classifies err. Validation kinds win over engine kinds when an error
// wraps several sentinels.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
