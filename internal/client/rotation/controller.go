// Package rotation drives the host side of guest turnover: each departing
// guest tears down only the peer link, each arriving guest gets a fresh one,
// and host-local configuration survives the churn untouched.
package rotation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/snapbooth/server/internal/protocol"
)

// Peer is the per-guest media link. Exactly one instance exists per guest
// turn; it is closed and discarded when the guest leaves, never reused.
type Peer interface {
	CreateOffer() (string, error)
	Close()
}

// PeerFactory constructs the fresh peer link for a newly joined guest.
type PeerFactory func() (Peer, error)

type iSender interface {
	Send(msg protocol.Message) error
}

type CompletedEntry struct {
	SessionId      string
	GuestId        string
	FrameResultUrl string
}

// SettingsPatch is a partial settings update; nil fields are left as-is.
type SettingsPatch struct {
	ChromaKeyEnabled    *bool
	ChromaKeyColor      *string
	ChromaKeySimilarity *float64
	ChromaKeySmoothness *float64
	FrameLayoutId       *string
	RecordingDurationMs *int
	CaptureIntervalMs   *int
}

type Controller struct {
	sender  iSender
	newPeer PeerFactory
	logger  *slog.Logger

	mu       sync.Mutex
	peer     Peer
	guestId  string
	waiting  bool
	settings protocol.HostSettings
	history  []CompletedEntry

	// localStream is the host's own media stream handle. The controller
	// never replaces or mutates it across guest cycles.
	localStream any
}

func NewController(sender iSender, newPeer PeerFactory, localStream any, logger *slog.Logger) *Controller {
	return &Controller{
		sender:      sender,
		newPeer:     newPeer,
		logger:      logger,
		waiting:     true,
		settings:    protocol.DefaultHostSettings(),
		localStream: localStream,
	}
}

// HandleGuestJoined records the new guest and initiates the peer link
// renegotiation; the host always sends the first offer.
func (c *Controller) HandleGuestJoined(msg protocol.PeerJoined) error {
	c.mu.Lock()
	if c.peer != nil {
		// stale link from a guest the server already evicted
		c.peer.Close()
		c.peer = nil
	}

	peer, err := c.newPeer()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("rotation: create peer: %w", err)
	}

	c.peer = peer
	c.guestId = msg.UserId
	c.waiting = false
	c.mu.Unlock()

	sdp, err := peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("rotation: create offer: %w", err)
	}

	if err := c.sender.Send(protocol.Offer{To: msg.UserId, SDP: sdp}); err != nil {
		return fmt.Errorf("rotation: send offer: %w", err)
	}

	c.logger.Info("guest joined", "guest_id", msg.UserId)
	return nil
}

// HandleGuestLeft discards the peer link and returns to the waiting state.
// Local stream, chroma-key settings, frame layout and device selection are
// deliberately untouched.
func (c *Controller) HandleGuestLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer != nil {
		c.peer.Close()
		c.peer = nil
	}
	c.guestId = ""
	c.waiting = true

	c.logger.Info("guest left, waiting for next guest")
}

// HandleSessionComplete archives the finished cycle in the in-memory
// history for this browser session.
func (c *Controller) HandleSessionComplete(msg protocol.SessionComplete) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, CompletedEntry{
		SessionId:      msg.SessionId,
		GuestId:        msg.GuestId,
		FrameResultUrl: msg.FrameResultUrl,
	})
}

// UpdateHostSettings merges a partial update into the authoritative host
// copy and optionally syncs it to the server for the guest mirror. Sync
// failures are best-effort; the local copy stays correct regardless.
func (c *Controller) UpdateHostSettings(patch SettingsPatch, syncToServer bool) protocol.HostSettings {
	c.mu.Lock()
	if patch.ChromaKeyEnabled != nil {
		c.settings.ChromaKeyEnabled = *patch.ChromaKeyEnabled
	}
	if patch.ChromaKeyColor != nil {
		c.settings.ChromaKeyColor = *patch.ChromaKeyColor
	}
	if patch.ChromaKeySimilarity != nil {
		c.settings.ChromaKeySimilarity = *patch.ChromaKeySimilarity
	}
	if patch.ChromaKeySmoothness != nil {
		c.settings.ChromaKeySmoothness = *patch.ChromaKeySmoothness
	}
	if patch.FrameLayoutId != nil {
		c.settings.FrameLayoutId = *patch.FrameLayoutId
	}
	if patch.RecordingDurationMs != nil {
		c.settings.RecordingDurationMs = *patch.RecordingDurationMs
	}
	if patch.CaptureIntervalMs != nil {
		c.settings.CaptureIntervalMs = *patch.CaptureIntervalMs
	}
	settings := c.settings
	c.mu.Unlock()

	if syncToServer {
		if err := c.sender.Send(protocol.HostSettingsSync{Settings: settings}); err != nil {
			c.logger.Warn("settings sync failed", "error", err)
		}
	}

	return settings
}

func (c *Controller) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

func (c *Controller) GuestId() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestId
}

func (c *Controller) Settings() protocol.HostSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// CurrentPeer exposes the live peer link; nil while waiting.
func (c *Controller) CurrentPeer() Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// LocalStream returns the host media stream handle, unchanged for the
// lifetime of the controller.
func (c *Controller) LocalStream() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localStream
}

func (c *Controller) History() []CompletedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CompletedEntry, len(c.history))
	copy(out, c.history)
	return out
}
