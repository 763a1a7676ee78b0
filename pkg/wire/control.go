package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ControlResponseKind enumerates the reply variants to an observation
// request/cancel query. Order matches spec §3/§4.10 and must not change
// across ports.
type ControlResponseKind uint8

const (
	ControlAccepted ControlResponseKind = iota
	ControlDeclined
	ControlOccupied
	ControlCanceled
)

func (k ControlResponseKind) String() string {
	switch k {
	case ControlAccepted:
		return "Accepted"
	case ControlDeclined:
		return "Declined"
	case ControlOccupied:
		return "Occupied"
	case ControlCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ControlResponseKind(%d)", uint8(k))
	}
}

// ControlResponse is the reply to an observation request/cancel query. It
// carries no payload, so it is encoded as a single-element CBOR array
// holding its tag, keeping the wire shape consistent with ObservableResponse
// and Signal below.
type ControlResponse struct {
	Kind ControlResponseKind
}

func (r ControlResponse) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal([]any{uint8(r.Kind)})
}

func (r *ControlResponse) UnmarshalCBOR(data []byte) error {
	var arr []cbor.RawMessage
	if err := decMode.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 1 {
		return fmt.Errorf("wire: ControlResponse: empty envelope")
	}
	var kind uint8
	if err := decMode.Unmarshal(arr[0], &kind); err != nil {
		return err
	}
	r.Kind = ControlResponseKind(kind)
	return nil
}

// ObservableResponseKind enumerates the feedback-topic message variants an
// observable publishes during and after an accepted request.
type ObservableResponseKind uint8

const (
	ResponseFeedback ObservableResponseKind = iota
	ResponseFinished
	ResponseCanceled
)

func (k ObservableResponseKind) String() string {
	switch k {
	case ResponseFeedback:
		return "Feedback"
	case ResponseFinished:
		return "Finished"
	case ResponseCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ObservableResponseKind(%d)", uint8(k))
	}
}

// ObservableResponse carries a tag plus the encoded execution/feedback
// payload. Wire shape: a two-element CBOR array [tag, payload-bytes].
type ObservableResponse struct {
	Kind    ObservableResponseKind
	Payload Message
}

func (r ObservableResponse) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal([]any{uint8(r.Kind), []byte(r.Payload)})
}

func (r *ObservableResponse) UnmarshalCBOR(data []byte) error {
	var arr []cbor.RawMessage
	if err := decMode.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 2 {
		return fmt.Errorf("wire: ObservableResponse: expected 2 elements, got %d", len(arr))
	}
	var kind uint8
	if err := decMode.Unmarshal(arr[0], &kind); err != nil {
		return err
	}
	var payload []byte
	if err := decMode.Unmarshal(arr[1], &payload); err != nil {
		return err
	}
	r.Kind = ObservableResponseKind(kind)
	r.Payload = Message(payload)
	return nil
}
