// Package session holds the join-scoped identity of one booth client. All
// state established by the join handshake lives here; nothing is package
// level, so two sessions in one process never share mutable state.
package session

import (
	"sync"

	"github.com/snapbooth/server/internal/protocol"
)

type Session struct {
	RoomId string
	UserId string
	Role   protocol.Role
	Mode   protocol.Mode

	mu         sync.Mutex
	peerUserId string
}

// NewFromJoined builds the session from the server's join acknowledgement.
func NewFromJoined(msg protocol.Joined) *Session {
	s := &Session{
		RoomId: msg.RoomId,
		UserId: msg.UserId,
		Role:   msg.Role,
		Mode:   msg.Mode,
	}
	// a joining guest learns the host identity immediately; a host learns
	// the guest identity from the later peer-joined event
	s.peerUserId = msg.HostId
	return s
}

// PeerUserId is the identity on the other end of the room, empty while no
// peer is present.
func (s *Session) PeerUserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerUserId
}

func (s *Session) SetPeerUserId(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerUserId = id
}

func (s *Session) ClearPeer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerUserId = ""
}

func (s *Session) IsHost() bool {
	return s.Role == protocol.RoleHost
}
