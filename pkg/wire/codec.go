// Package wire defines the byte-level message envelope and the control sum
// types exchanged over the transport: Message itself, ControlResponse,
// ObservableResponse, and the admin Signal/entity records. Everything here
// is encoded through a shared canonical CBOR mode so that two independent
// ports of this runtime stay wire-compatible.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic("wire: building canonical cbor encode mode: " + err.Error())
	}
	encMode = mode

	decOpts := cbor.DecOptions{}
	dMode, err := decOpts.DecMode()
	if err != nil {
		panic("wire: building cbor decode mode: " + err.Error())
	}
	decMode = dMode
}

// Message is an opaque encoded byte buffer plus typed codec helpers. It is
// what subscriber put-callbacks, query replies, and feedback payloads carry.
type Message []byte

// Encode marshals v into a Message using the runtime's canonical CBOR mode.
func Encode[T any](v T) (Message, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Message(b), nil
}

// Decode unmarshals m into a value of type T.
func Decode[T any](m Message) (T, error) {
	var v T
	if err := decMode.Unmarshal(m, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Bytes returns the raw encoded content.
func (m Message) Bytes() []byte { return []byte(m) }
