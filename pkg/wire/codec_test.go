package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimas/pkg/core"
)

func TestMessageRoundTrip(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	want := payload{A: 42, B: "hi"}

	msg, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode[payload](msg)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestControlResponseRoundTrip(t *testing.T) {
	for _, kind := range []ControlResponseKind{ControlAccepted, ControlDeclined, ControlOccupied, ControlCanceled} {
		msg, err := Encode(ControlResponse{Kind: kind})
		require.NoError(t, err)

		got, err := Decode[ControlResponse](msg)
		require.NoError(t, err)
		assert.Equal(t, kind, got.Kind)
	}
}

func TestObservableResponseRoundTrip(t *testing.T) {
	payload, err := Encode([]int{1, 1, 2, 3, 5})
	require.NoError(t, err)

	msg, err := Encode(ObservableResponse{Kind: ResponseFeedback, Payload: payload})
	require.NoError(t, err)

	got, err := Decode[ObservableResponse](msg)
	require.NoError(t, err)
	assert.Equal(t, ResponseFeedback, got.Kind)

	decodedInts, err := Decode[[]int](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 3, 5}, decodedInts)
}

func TestSignalStateRoundTripWithAndWithoutTarget(t *testing.T) {
	target := core.StateActive
	msg, err := Encode(Signal{Kind: SignalState, Target: &target})
	require.NoError(t, err)

	got, err := Decode[Signal](msg)
	require.NoError(t, err)
	require.NotNil(t, got.Target)
	assert.Equal(t, core.StateActive, *got.Target)

	msg2, err := Encode(Signal{Kind: SignalState, Target: nil})
	require.NoError(t, err)
	got2, err := Decode[Signal](msg2)
	require.NoError(t, err)
	assert.Nil(t, got2.Target)
}

func TestSignalPingRoundTrip(t *testing.T) {
	msg, err := Encode(Signal{Kind: SignalPing, SentUTCNanos: 123456789})
	require.NoError(t, err)

	got, err := Decode[Signal](msg)
	require.NoError(t, err)
	assert.Equal(t, SignalPing, got.Kind)
	assert.Equal(t, int64(123456789), got.SentUTCNanos)
}
