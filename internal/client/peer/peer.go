package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/snapbooth/server/internal/protocol"
)

// Peer wraps one end of the booth's media link. Each guest-rotation cycle
// gets a freshly constructed instance; a Peer is never reused after Close.
type Peer struct {
	pc     *pion.PeerConnection
	logger *slog.Logger

	// remote ICE candidates cannot be applied before the remote
	// description is set. Trickled candidates may be relayed ahead of the
	// answer, so AddRemoteCandidate buffers them instead of waiting.
	mu            sync.Mutex
	remoteDescSet bool
	pending       []pion.ICECandidateInit
}

func New(iceServerURLs []string, logger *slog.Logger) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, u := range iceServerURLs {
		servers = append(servers, pion.ICEServer{URLs: []string{u}})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: servers,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:     pc,
		logger: logger,
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		logger.Debug("ice connection state", "state", state.String())
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
	})

	return p, nil
}

// OnLocalCandidate registers the callback for locally discovered ICE
// candidates, already converted to the wire form for relay.
func (p *Peer) OnLocalCandidate(send func(protocol.IceCandidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.logger.Debug("ice gathering complete")
			return
		}

		j := c.ToJSON()
		candidate := protocol.IceCandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			candidate.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			candidate.SDPMLineIndex = *j.SDPMLineIndex
		}

		send(candidate)
	})
}

// OnRemoteTrack registers the remote-media-available callback.
func (p *Peer) OnRemoteTrack(f func(track *pion.TrackRemote)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.logger.Info("remote track", "kind", track.Kind().String(), "codec", codec.MimeType)
		f(track)
	})
}

// OnConnected registers a callback fired once the peer link is established.
func (p *Peer) OnConnected(f func()) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		if state == pion.PeerConnectionStateConnected {
			f()
		}
	})
}

// AddLocalTrack attaches an outbound media track. Must be called before
// the offer/answer exchange so the track is negotiated.
func (p *Peer) AddLocalTrack(track pion.TrackLocal) error {
	if _, err := p.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	return nil
}

// CreateOffer produces the local offer. The host always initiates toward a
// newly joined guest.
func (p *Peer) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// AcceptOffer applies a relayed remote offer and produces the answer.
func (p *Peer) AcceptOffer(sdp string) (string, error) {
	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	p.flushPending()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

// AcceptAnswer applies a relayed remote answer and drains any candidates
// that arrived ahead of it.
func (p *Peer) AcceptAnswer(sdp string) error {
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.flushPending()
	return nil
}

// AddRemoteCandidate applies a relayed candidate. Candidates arriving
// before the remote description are buffered and applied once it is set;
// the call never blocks the caller's dispatch loop.
func (p *Peer) AddRemoteCandidate(candidate protocol.IceCandidate) error {
	init := pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &candidate.SDPMid,
		SDPMLineIndex: &candidate.SDPMLineIndex,
	}

	p.mu.Lock()
	if !p.remoteDescSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *Peer) flushPending() {
	p.mu.Lock()
	p.remoteDescSet = true
	buffered := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, init := range buffered {
		if err := p.pc.AddICECandidate(init); err != nil {
			p.logger.Warn("buffered ice candidate rejected", "error", err)
		}
	}
}

func (p *Peer) Close() {
	if p.pc != nil {
		p.pc.Close()
	}
}
