package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbooth/server/internal/client/capture"
	"github.com/snapbooth/server/internal/client/config"
	"github.com/snapbooth/server/internal/client/transport"
	"github.com/snapbooth/server/internal/client/upload"
	"github.com/snapbooth/server/internal/protocol"
)

func newTestBooth(t *testing.T, role string) *booth {
	t.Helper()

	cfg := &config.Config{
		ServerURL:     "ws://127.0.0.1:1/ws",
		UploadBaseURL: "http://127.0.0.1:1",
		RoomCode:      "ABCDEF",
		Role:          role,
	}
	logger := slog.Default()
	tc := transport.NewClient(cfg.ServerURL, logger)
	source := &syntheticSource{}
	seq := capture.NewSequencer(role, source, upload.NewClient(cfg.UploadBaseURL), tc, logger)

	return newBooth(cfg, tc, seq, source, logger)
}

func TestHostRotationControllerReadyBeforeConnect(t *testing.T) {
	// a guest can join right behind the host's handshake; the controller
	// must already exist when that peer-joined arrives
	host := newTestBooth(t, "host")
	assert.NotNil(t, host.rot)

	guest := newTestBooth(t, "guest")
	assert.Nil(t, guest.rot)
}

func TestJoinedHandlerBindsSession(t *testing.T) {
	b := newTestBooth(t, "guest")
	require.Nil(t, b.sess)

	b.handleJoined(protocol.Joined{
		RoomId: "ABCDEF",
		UserId: "u-1",
		Role:   protocol.RoleGuest,
		Mode:   protocol.ModeV3,
		HostId: "h-1",
	})

	// the session is bound before the join signal is handed to main, so
	// any handler dispatched afterwards sees it
	require.NotNil(t, b.sess)
	assert.Equal(t, "h-1", b.sess.PeerUserId())

	select {
	case joined := <-b.joinedCh:
		assert.Equal(t, "u-1", joined.UserId)
	default:
		t.Fatal("join signal not delivered")
	}
}
