package rotation

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/snapbooth/server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPeer struct {
	id     int
	closed bool
}

func (m *mockPeer) CreateOffer() (string, error) { return fmt.Sprintf("sdp-%d", m.id), nil }
func (m *mockPeer) Close()                       { m.closed = true }

type mockSender struct {
	sent []protocol.Message
	err  error
}

func (m *mockSender) Send(msg protocol.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func newTestController(sender *mockSender) (*Controller, *[]*mockPeer) {
	var peers []*mockPeer
	factory := func() (Peer, error) {
		p := &mockPeer{id: len(peers)}
		peers = append(peers, p)
		return p, nil
	}
	stream := &struct{ device string }{device: "cam-0"}
	return NewController(sender, factory, stream, slog.Default()), &peers
}

func TestGuestJoinedSendsOffer(t *testing.T) {
	sender := &mockSender{}
	c, peers := newTestController(sender)

	require.NoError(t, c.HandleGuestJoined(protocol.PeerJoined{UserId: "guest-1", Role: protocol.RoleGuest}))

	assert.False(t, c.Waiting())
	assert.Equal(t, "guest-1", c.GuestId())
	require.Len(t, *peers, 1)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, protocol.Offer{To: "guest-1", SDP: "sdp-0"}, sender.sent[0])
}

func TestGuestLeftResetsOnlyPeerLink(t *testing.T) {
	sender := &mockSender{}
	c, peers := newTestController(sender)

	layout := "polaroid"
	c.UpdateHostSettings(SettingsPatch{FrameLayoutId: &layout}, false)
	settingsBefore := c.Settings()
	streamBefore := c.LocalStream()

	require.NoError(t, c.HandleGuestJoined(protocol.PeerJoined{UserId: "guest-1"}))
	c.HandleGuestLeft()

	assert.True(t, c.Waiting())
	assert.Empty(t, c.GuestId())
	assert.True(t, (*peers)[0].closed)
	assert.Nil(t, c.CurrentPeer())

	assert.Equal(t, settingsBefore, c.Settings())
	assert.Same(t, streamBefore, c.LocalStream())
}

func TestChurnPreservesHostConfiguration(t *testing.T) {
	sender := &mockSender{}
	c, peers := newTestController(sender)

	enabled := true
	color := "#112233"
	layout := "strip-4"
	c.UpdateHostSettings(SettingsPatch{
		ChromaKeyEnabled: &enabled,
		ChromaKeyColor:   &color,
		FrameLayoutId:    &layout,
	}, false)

	settingsBefore := c.Settings()
	streamBefore := c.LocalStream()

	const cycles = 10
	for i := 0; i < cycles; i++ {
		require.NoError(t, c.HandleGuestJoined(protocol.PeerJoined{UserId: fmt.Sprintf("guest-%d", i)}))
		prev := c.CurrentPeer()
		c.HandleGuestLeft()
		assert.NotNil(t, prev)
	}

	// only the peer object identity changed across cycles
	assert.Len(t, *peers, cycles)
	for i := 0; i < cycles-1; i++ {
		assert.NotSame(t, (*peers)[i], (*peers)[i+1])
		assert.True(t, (*peers)[i].closed)
	}

	assert.Equal(t, settingsBefore, c.Settings())
	assert.Same(t, streamBefore, c.LocalStream())
}

func TestSessionCompleteArchivedInHistory(t *testing.T) {
	sender := &mockSender{}
	c, _ := newTestController(sender)

	c.HandleSessionComplete(protocol.SessionComplete{
		SessionId:      "s-1",
		GuestId:        "guest-1",
		FrameResultUrl: "https://cdn/framed-1.png",
	})
	c.HandleSessionComplete(protocol.SessionComplete{
		SessionId:      "s-2",
		GuestId:        "guest-2",
		FrameResultUrl: "https://cdn/framed-2.png",
	})

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, CompletedEntry{
		SessionId:      "s-1",
		GuestId:        "guest-1",
		FrameResultUrl: "https://cdn/framed-1.png",
	}, history[0])
}

func TestUpdateHostSettingsSyncsToServer(t *testing.T) {
	sender := &mockSender{}
	c, _ := newTestController(sender)

	similarity := 0.6
	got := c.UpdateHostSettings(SettingsPatch{ChromaKeySimilarity: &similarity}, true)

	assert.Equal(t, 0.6, got.ChromaKeySimilarity)
	require.Len(t, sender.sent, 1)
	sync, ok := sender.sent[0].(protocol.HostSettingsSync)
	require.True(t, ok)
	assert.Equal(t, got, sync.Settings)

	// untouched fields keep their defaults
	assert.Equal(t, protocol.DefaultHostSettings().ChromaKeyColor, got.ChromaKeyColor)
}
