package peer

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapbooth/server/internal/protocol"
)

func newPeerPair(t *testing.T) (*Peer, *Peer) {
	t.Helper()

	host, err := New(nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(host.Close)

	guest, err := New(nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(guest.Close)

	// a data channel gives the offer a media section without needing tracks
	_, err = host.pc.CreateDataChannel("sync", nil)
	require.NoError(t, err)

	return host, guest
}

func TestCandidateAheadOfAnswerDoesNotBlock(t *testing.T) {
	host, guest := newPeerPair(t)

	offer, err := host.CreateOffer()
	require.NoError(t, err)

	// relayed candidates can outrun the answer; applying one before the
	// remote description must return immediately, not stall the caller
	done := make(chan error, 1)
	go func() {
		done <- guest.AddRemoteCandidate(protocol.IceCandidate{
			Candidate:     "candidate:1 1 udp 2130706433 127.0.0.1 54321 typ host",
			SDPMid:        "0",
			SDPMLineIndex: 0,
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("early candidate stalled the caller")
	}

	answer, err := guest.AcceptOffer(offer)
	require.NoError(t, err)
	require.NotEmpty(t, answer)
	require.NoError(t, host.AcceptAnswer(answer))
}

func TestCandidateAfterRemoteDescriptionApplies(t *testing.T) {
	host, guest := newPeerPair(t)

	offer, err := host.CreateOffer()
	require.NoError(t, err)

	_, err = guest.AcceptOffer(offer)
	require.NoError(t, err)

	require.NoError(t, guest.AddRemoteCandidate(protocol.IceCandidate{
		Candidate:     "candidate:1 1 udp 2130706433 127.0.0.1 54321 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}))
}
