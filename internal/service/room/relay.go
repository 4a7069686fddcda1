package room

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/room"
)

type RelaySignalParams struct {
	RoomId      string
	SenderId    string
	RecipientId string
}

type RelaySignalResponse struct {
	// RecipientConn is nil when the message is to be dropped: the recipient
	// no longer occupies the room, or their connection is gone. Relay
	// messages to absent recipients are dropped, not errored, since the
	// sender cannot always know the recipient left yet.
	RecipientConn *websocket.Conn
}

// RelaySignal resolves the recipient of an offer/answer/ice message. The
// payload itself is forwarded verbatim by the caller; the server never
// interprets session-description contents.
func (s *Service) RelaySignal(ctx context.Context, params *RelaySignalParams) (RelaySignalResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return RelaySignalResponse{}, ErrRoomNotFound
		}
		return RelaySignalResponse{}, err
	}

	if params.SenderId != rm.HostId && params.SenderId != rm.GuestId {
		return RelaySignalResponse{}, ErrNotInRoom
	}

	if params.RecipientId != rm.HostId && (rm.GuestId == "" || params.RecipientId != rm.GuestId) {
		s.logger.DebugContext(ctx, "relay recipient not in room, dropping",
			"room_id", params.RoomId, "recipient_id", params.RecipientId)
		return RelaySignalResponse{}, nil
	}

	conn, err := s.connRepo.GetConn(params.RecipientId)
	if err != nil {
		s.logger.DebugContext(ctx, "relay recipient not connected, dropping",
			"room_id", params.RoomId, "recipient_id", params.RecipientId)
		return RelaySignalResponse{}, nil
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	return RelaySignalResponse{RecipientConn: conn}, nil
}
