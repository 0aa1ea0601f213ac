package negotiation

import (
	"errors"
	"fmt"
)

// ErrIncompatibleDataChannel is the sentinel wrapped by every negotiation Error
var ErrIncompatibleDataChannel = errors.New("incompatible data channel configuration")

// Error kinds
const (
	KindSerialization = "serialization"
	KindTransport     = "transport"
)

// Error reports that source and destination share no usable serialization or transport.
// This is a user-attributable configuration problem, not a transient failure.
type Error struct {
	Kind        string
	Source      []string
	Destination []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: no common %s between source %v and destination %v",
		ErrIncompatibleDataChannel, e.Kind, e.Source, e.Destination)
}

func (*Error) Unwrap() error {
	return ErrIncompatibleDataChannel
}

func newSerializationError(src, dst []Serialization) *Error {
	return &Error{Kind: KindSerialization, Source: toStrings(src), Destination: toStrings(dst)}
}

func newTransportError(src, dst []Transport) *Error {
	return &Error{Kind: KindTransport, Source: toStrings(src), Destination: toStrings(dst)}
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}
