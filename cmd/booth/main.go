// Command booth is a headless photo-booth client. It joins a room as host
// or guest, negotiates the peer media link through the signaling server,
// and participates in capture cycles with a synthetic frame source.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/snapbooth/server/internal/client/capture"
	"github.com/snapbooth/server/internal/client/config"
	"github.com/snapbooth/server/internal/client/peer"
	"github.com/snapbooth/server/internal/client/rotation"
	"github.com/snapbooth/server/internal/client/session"
	"github.com/snapbooth/server/internal/client/transport"
	"github.com/snapbooth/server/internal/client/upload"
	"github.com/snapbooth/server/internal/protocol"
)

// syntheticSource produces a solid-color frame; a real booth would read
// from the camera pipeline here.
type syntheticSource struct {
	fill color.RGBA
}

func (s *syntheticSource) CaptureFrame() (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	for y := 0; y < 720; y++ {
		for x := 0; x < 1280; x++ {
			img.SetRGBA(x, y, s.fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type booth struct {
	cfg    *config.Config
	tc     *transport.Client
	seq    *capture.Sequencer
	logger *slog.Logger

	sess     *session.Session
	joinedCh chan protocol.Joined

	// host role only
	rot *rotation.Controller

	// guest role only
	guestPeer *peer.Peer
	// mirror is the read-only copy of the host settings on the guest side
	mirror protocol.HostSettings
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	tc := transport.NewClient(cfg.ServerURL, logger)
	tc.SetDropHandler(func() {
		logger.Error("connection lost for good, rejoin required")
		cancel()
	})

	uploader := upload.NewClient(cfg.UploadBaseURL)
	source := &syntheticSource{fill: color.RGBA{R: 0, G: 255, B: 0, A: 255}}
	seq := capture.NewSequencer(cfg.Role, source, uploader, tc, logger)

	b := newBooth(cfg, tc, seq, source, logger)

	if err := tc.Connect(ctx); err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer tc.Close()

	userId := uuid.NewString()
	if err := tc.Send(protocol.Join{
		RoomId: cfg.RoomCode,
		UserId: userId,
		Role:   protocol.Role(cfg.Role),
		Mode:   protocol.ModeV3,
	}); err != nil {
		logger.Error("join", "error", err)
		os.Exit(1)
	}

	select {
	case joined := <-b.joinedCh:
		logger.Info("joined room",
			"room_id", joined.RoomId,
			"role", string(joined.Role),
			"mode", string(joined.Mode),
		)
	case <-ctx.Done():
		return
	}

	<-ctx.Done()
	b.seq.Cancel()
	logger.Info("shutting down")
}

// newBooth wires the client pieces together. A host's rotation controller
// exists before the connection opens so a guest arriving right behind the
// join handshake is never dropped.
func newBooth(cfg *config.Config, tc *transport.Client, seq *capture.Sequencer, source capture.Source, logger *slog.Logger) *booth {
	b := &booth{
		cfg:      cfg,
		tc:       tc,
		seq:      seq,
		logger:   logger,
		joinedCh: make(chan protocol.Joined, 1),
		mirror:   protocol.DefaultHostSettings(),
	}
	if protocol.Role(cfg.Role) == protocol.RoleHost {
		b.rot = rotation.NewController(tc, b.hostPeerFactory(), source, logger)
	}
	b.registerHandlers()
	return b
}

// handleJoined runs on the dispatch goroutine, the same one every later
// handler reading the session runs on, so the write needs no extra
// synchronization.
func (b *booth) handleJoined(joined protocol.Joined) {
	b.sess = session.NewFromJoined(joined)
	b.joinedCh <- joined
}

func (b *booth) registerHandlers() {
	b.tc.On(protocol.TypeJoined, func(msg protocol.Message) {
		b.handleJoined(msg.(protocol.Joined))
	})

	b.tc.On(protocol.TypePeerJoined, func(msg protocol.Message) {
		pj := msg.(protocol.PeerJoined)
		if b.sess == nil {
			return
		}
		b.sess.SetPeerUserId(pj.UserId)
		if b.rot != nil {
			if err := b.rot.HandleGuestJoined(pj); err != nil {
				b.logger.Error("guest joined", "error", err)
			}
		}
	})

	b.tc.On(protocol.TypeGuestLeft, func(msg protocol.Message) {
		if b.sess == nil {
			return
		}
		b.sess.ClearPeer()
		b.seq.Cancel()
		if b.rot != nil {
			b.rot.HandleGuestLeft()
		}
	})

	b.tc.On(protocol.TypePeerLeft, func(msg protocol.Message) {
		// host departure means the room is gone; treat as session-over
		b.logger.Info("room ended")
		b.seq.Cancel()
		b.tc.Close()
	})

	b.tc.On(protocol.TypeOffer, func(msg protocol.Message) {
		b.handleOffer(msg.(protocol.Offer))
	})

	b.tc.On(protocol.TypeAnswer, func(msg protocol.Message) {
		answer := msg.(protocol.Answer)
		if b.rot == nil {
			return
		}
		p, ok := b.rot.CurrentPeer().(*peer.Peer)
		if !ok {
			return
		}
		if err := p.AcceptAnswer(answer.SDP); err != nil {
			b.logger.Error("accept answer", "error", err)
		}
	})

	b.tc.On(protocol.TypeIce, func(msg protocol.Message) {
		ice := msg.(protocol.Ice)
		p := b.currentPeer()
		if p == nil {
			return
		}
		if err := p.AddRemoteCandidate(ice.Candidate); err != nil {
			b.logger.Error("add remote candidate", "error", err)
		}
	})

	b.tc.On(protocol.TypeCountdownTick, func(msg protocol.Message) {
		b.seq.HandleCountdownTick(msg.(protocol.CountdownTick))
	})

	b.tc.On(protocol.TypeCaptureNow, func(msg protocol.Message) {
		if err := b.seq.HandleCaptureNow(msg.(protocol.CaptureNow)); err != nil {
			b.logger.Error("capture", "error", err)
		}
	})

	b.tc.On(protocol.TypePhotosMerged, func(msg protocol.Message) {
		merged := msg.(protocol.PhotosMerged)
		b.logger.Info("photos merged", "session_id", merged.SessionId, "merged_url", merged.MergedUrl)
	})

	b.tc.On(protocol.TypeSessionComplete, func(msg protocol.Message) {
		sc := msg.(protocol.SessionComplete)
		b.logger.Info("session complete", "session_id", sc.SessionId, "result_url", sc.FrameResultUrl)
		b.seq.HandleSessionComplete()
		if b.rot != nil {
			b.rot.HandleSessionComplete(sc)
		}
	})

	b.tc.On(protocol.TypeHostSettings, func(msg protocol.Message) {
		hs := msg.(protocol.HostSettings)
		b.mirror = hs
		b.logger.Debug("host settings updated", "frame_layout_id", hs.FrameLayoutId)
	})

	b.tc.On(protocol.TypeError, func(msg protocol.Message) {
		b.logger.Warn("server error", "message", msg.(protocol.Error).Message)
		b.seq.HandleServerError()
	})
}

// hostPeerFactory builds the per-guest peer link, wired to relay local
// candidates through the transport.
func (b *booth) hostPeerFactory() rotation.PeerFactory {
	return func() (rotation.Peer, error) {
		p, err := peer.New(b.cfg.IceServerURLs, b.logger)
		if err != nil {
			return nil, err
		}

		p.OnLocalCandidate(func(candidate protocol.IceCandidate) {
			if err := b.tc.Send(protocol.Ice{
				To:        b.sess.PeerUserId(),
				Candidate: candidate,
			}); err != nil {
				b.logger.Warn("send candidate", "error", err)
			}
		})

		return p, nil
	}
}

// handleOffer is the guest side of negotiation: the host always offers
// first, the guest answers.
func (b *booth) handleOffer(offer protocol.Offer) {
	p, err := peer.New(b.cfg.IceServerURLs, b.logger)
	if err != nil {
		b.logger.Error("create peer", "error", err)
		return
	}
	if b.guestPeer != nil {
		b.guestPeer.Close()
	}
	b.guestPeer = p

	p.OnLocalCandidate(func(candidate protocol.IceCandidate) {
		if err := b.tc.Send(protocol.Ice{
			To:        offer.From,
			Candidate: candidate,
		}); err != nil {
			b.logger.Warn("send candidate", "error", err)
		}
	})

	sdp, err := p.AcceptOffer(offer.SDP)
	if err != nil {
		b.logger.Error("accept offer", "error", err)
		return
	}

	if err := b.tc.Send(protocol.Answer{To: offer.From, SDP: sdp}); err != nil {
		b.logger.Error("send answer", "error", err)
	}
}

func (b *booth) currentPeer() *peer.Peer {
	if b.guestPeer != nil {
		return b.guestPeer
	}
	if b.rot != nil {
		if p, ok := b.rot.CurrentPeer().(*peer.Peer); ok {
			return p
		}
	}
	return nil
}
