package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"dimas/pkg/core"
)

// SignalKind enumerates the admin protocol's request variants.
type SignalKind uint8

const (
	SignalAbout SignalKind = iota
	SignalPing
	SignalShutdown
	SignalState
)

func (k SignalKind) String() string {
	switch k {
	case SignalAbout:
		return "About"
	case SignalPing:
		return "Ping"
	case SignalShutdown:
		return "Shutdown"
	case SignalState:
		return "State"
	default:
		return fmt.Sprintf("SignalKind(%d)", uint8(k))
	}
}

// Signal is the admin-protocol request envelope. SentUTCNanos is populated
// only for Ping; Target is populated only for State, and nil there means
// "report state without transitioning."
type Signal struct {
	Kind         SignalKind
	SentUTCNanos int64
	Target       *core.OperationState
}

func (s Signal) MarshalCBOR() ([]byte, error) {
	var targetPayload any
	if s.Target != nil {
		targetPayload = int32(*s.Target)
	}
	return encMode.Marshal([]any{uint8(s.Kind), s.SentUTCNanos, targetPayload})
}

func (s *Signal) UnmarshalCBOR(data []byte) error {
	var arr []cbor.RawMessage
	if err := decMode.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 3 {
		return fmt.Errorf("wire: Signal: expected 3 elements, got %d", len(arr))
	}
	var kind uint8
	if err := decMode.Unmarshal(arr[0], &kind); err != nil {
		return err
	}
	var sent int64
	if err := decMode.Unmarshal(arr[1], &sent); err != nil {
		return err
	}
	var targetRaw *int32
	if err := decMode.Unmarshal(arr[2], &targetRaw); err != nil {
		return err
	}

	s.Kind = SignalKind(kind)
	s.SentUTCNanos = sent
	if targetRaw == nil {
		s.Target = nil
	} else {
		st := core.OperationState(*targetRaw)
		s.Target = &st
	}
	return nil
}

// AboutEntity is the reply to About and to State (post-transition).
type AboutEntity struct {
	Name  string
	Kind  string
	Zid   string
	State core.OperationState
}

// PingEntity is the reply to Ping; OnewayNS is the replier's wall-clock
// receive time minus Signal.SentUTCNanos.
type PingEntity struct {
	Name     string
	Zid      string
	OnewayNS int64
}
