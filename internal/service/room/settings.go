package room

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/room"
)

type UpdateHostSettingsParams struct {
	RoomId   string
	SenderId string
	Settings Settings
}

type UpdateHostSettingsResponse struct {
	Settings Settings
	// GuestConn is nil when no guest is present; the sync is then a no-op
	// broadcast.
	GuestConn *websocket.Conn
}

// UpdateHostSettings replaces the room's host settings. Only the host may
// update; the guest holds a read-only mirror refreshed by the broadcast the
// caller sends to GuestConn.
func (s *Service) UpdateHostSettings(ctx context.Context, params *UpdateHostSettingsParams) (UpdateHostSettingsResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return UpdateHostSettingsResponse{}, ErrRoomNotFound
		}
		return UpdateHostSettingsResponse{}, err
	}

	if params.SenderId != rm.HostId {
		return UpdateHostSettingsResponse{}, ErrNotHost
	}

	if err := s.roomRepo.SetSettings(ctx, &room.SetSettingsParams{
		RoomId:   params.RoomId,
		Settings: params.Settings.toRepo(),
	}); err != nil {
		return UpdateHostSettingsResponse{}, err
	}

	resp := UpdateHostSettingsResponse{Settings: params.Settings}

	if rm.GuestId != "" {
		if guestConn, err := s.connRepo.GetConn(rm.GuestId); err == nil {
			resp.GuestConn = guestConn
		}
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	return resp, nil
}
