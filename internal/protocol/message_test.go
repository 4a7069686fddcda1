package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"made-up","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeReturnsValueForms(t *testing.T) {
	data, err := Encode(Offer{From: "host-1", To: "guest-1", SDP: "v=0"})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)

	// value form, so dispatch sites can type-switch without pointers
	offer, ok := msg.(Offer)
	require.True(t, ok)
	assert.Equal(t, Offer{From: "host-1", To: "guest-1", SDP: "v=0"}, offer)
}

func TestDecodeEmptyPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{}, msg)
}

func TestRelayPayloadsSurviveRoundTrip(t *testing.T) {
	ice := Ice{
		From: "guest-1",
		To:   "host-1",
		Candidate: IceCandidate{
			Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 54321 typ host",
			SDPMid:        "0",
			SDPMLineIndex: 0,
		},
	}

	data, err := Encode(ice)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ice, got)
}
