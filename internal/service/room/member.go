package room

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/room"
)

const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

const (
	ModeLegacy = "legacy"
	ModeV3     = "v3"
)

type JoinRoomParams struct {
	RoomId string
	UserId string
	Role   string
	Mode   string
}

type JoinRoomResponse struct {
	RoomId string
	UserId string
	Role   string
	Mode   string
	// HostId is set when a guest joins.
	HostId string
	// Settings is the current host configuration snapshot, delivered to a
	// joining guest in v3 mode.
	Settings *Settings
	// HostConn is set when a guest joins and the host is connected, so the
	// caller can notify the host.
	HostConn *websocket.Conn
}

// JoinRoom arbitrates the role slots of a room. The first host join creates
// the room; a guest join fills the single guest slot. The requested role is
// honored, but the server is authoritative on whether the slot is free.
func (s *Service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	switch params.Role {
	case RoleHost:
		return s.joinAsHost(ctx, params)
	case RoleGuest:
		return s.joinAsGuest(ctx, params)
	default:
		return JoinRoomResponse{}, ErrNotInRoom
	}
}

func (s *Service) joinAsHost(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	_, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err == nil {
		// a room cannot exist without a host, so an existing room means
		// the host slot is occupied
		return JoinRoomResponse{}, ErrHostSlotTaken
	}
	if !errors.Is(err, room.ErrRoomNotFound) {
		return JoinRoomResponse{}, err
	}

	mode := params.Mode
	if mode == "" {
		mode = ModeV3
	}

	if err := s.roomRepo.SetRoom(ctx, &room.SetRoomParams{
		RoomId:    params.RoomId,
		HostId:    params.UserId,
		Mode:      mode,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	settings := DefaultSettings()
	if err := s.roomRepo.SetSettings(ctx, &room.SetSettingsParams{
		RoomId:   params.RoomId,
		Settings: settings.toRepo(),
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	if err := s.roomRepo.SetParticipant(ctx, &room.SetParticipantParams{
		UserId: params.UserId,
		RoomId: params.RoomId,
		Role:   RoleHost,
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	s.logger.InfoContext(ctx, "room created", "room_id", params.RoomId, "host_id", params.UserId, "mode", mode)

	return JoinRoomResponse{
		RoomId:   params.RoomId,
		UserId:   params.UserId,
		Role:     RoleHost,
		Mode:     mode,
		Settings: &settings,
	}, nil
}

func (s *Service) joinAsGuest(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return JoinRoomResponse{}, ErrRoomNotFound
		}
		return JoinRoomResponse{}, err
	}

	if rm.GuestId != "" {
		return JoinRoomResponse{}, ErrGuestSlotTaken
	}

	// a capture cycle can only involve the guest present at its start; if
	// the previous guest's cycle is still winding down, discard it before
	// seating the new guest
	if rm.CaptureState != room.CaptureStateIdle {
		if err := s.abortCapture(ctx, params.RoomId); err != nil {
			return JoinRoomResponse{}, err
		}
	}

	if err := s.roomRepo.SetGuest(ctx, &room.SetGuestParams{
		RoomId:  params.RoomId,
		GuestId: params.UserId,
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	if err := s.roomRepo.SetParticipant(ctx, &room.SetParticipantParams{
		UserId: params.UserId,
		RoomId: params.RoomId,
		Role:   RoleGuest,
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	resp := JoinRoomResponse{
		RoomId: params.RoomId,
		UserId: params.UserId,
		Role:   RoleGuest,
		Mode:   rm.Mode,
		HostId: rm.HostId,
	}

	// v3 guests receive the host configuration snapshot on join; legacy
	// rooms go straight to offer/answer exchange
	if rm.Mode == ModeV3 {
		repoSettings, err := s.roomRepo.GetSettings(ctx, params.RoomId)
		if err != nil {
			return JoinRoomResponse{}, err
		}
		settings := settingsFromRepo(repoSettings)
		resp.Settings = &settings
	}

	if hostConn, err := s.connRepo.GetConn(rm.HostId); err == nil {
		resp.HostConn = hostConn
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	s.logger.InfoContext(ctx, "guest joined", "room_id", params.RoomId, "guest_id", params.UserId)

	return resp, nil
}

type ConnectParticipantParams struct {
	Conn   *websocket.Conn
	UserId string
}

func (s *Service) ConnectParticipant(ctx context.Context, params *ConnectParticipantParams) error {
	return s.connRepo.Add(params.Conn, params.UserId)
}

type DisconnectParams struct {
	UserId string
	RoomId string
}

type DisconnectResponse struct {
	Role string
	// IsRoomDeleted reports that the departing participant was the host and
	// the room was torn down.
	IsRoomDeleted bool
	// CaptureAborted reports that an in-flight capture session was
	// discarded by this departure.
	CaptureAborted bool
	// PeerConn is the connection of the remaining occupant, if any.
	PeerConn *websocket.Conn
}

// Disconnect removes a participant. A departing host tears the room down;
// a departing guest returns the room to its hosted state and discards any
// in-flight capture.
func (s *Service) Disconnect(ctx context.Context, params *DisconnectParams) (DisconnectResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	if err := s.connRepo.RemoveByUserId(params.UserId); err != nil {
		s.logger.DebugContext(ctx, "connection already removed", "user_id", params.UserId)
	}

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return DisconnectResponse{}, ErrRoomNotFound
		}
		return DisconnectResponse{}, err
	}

	if err := s.roomRepo.RemoveParticipant(ctx, params.UserId); err != nil && !errors.Is(err, room.ErrParticipantNotFound) {
		return DisconnectResponse{}, err
	}

	switch params.UserId {
	case rm.HostId:
		resp := DisconnectResponse{Role: RoleHost, IsRoomDeleted: true}
		if rm.GuestId != "" {
			if guestConn, err := s.connRepo.GetConn(rm.GuestId); err == nil {
				resp.PeerConn = guestConn
			}
			if err := s.roomRepo.RemoveParticipant(ctx, rm.GuestId); err != nil && !errors.Is(err, room.ErrParticipantNotFound) {
				return DisconnectResponse{}, err
			}
		}

		if err := s.roomRepo.RemoveRoom(ctx, params.RoomId); err != nil {
			return DisconnectResponse{}, err
		}

		s.logger.InfoContext(ctx, "room deleted", "room_id", params.RoomId)
		return resp, nil

	case rm.GuestId:
		resp := DisconnectResponse{Role: RoleGuest}

		if rm.CaptureState != room.CaptureStateIdle {
			if err := s.abortCapture(ctx, params.RoomId); err != nil {
				return DisconnectResponse{}, err
			}
			resp.CaptureAborted = true
		}

		if err := s.roomRepo.RemoveGuest(ctx, params.RoomId); err != nil {
			return DisconnectResponse{}, err
		}

		if hostConn, err := s.connRepo.GetConn(rm.HostId); err == nil {
			resp.PeerConn = hostConn
		}

		if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
			s.logger.WarnContext(ctx, "failed to touch room", "error", err)
		}

		s.logger.InfoContext(ctx, "guest left", "room_id", params.RoomId, "guest_id", params.UserId)
		return resp, nil

	default:
		return DisconnectResponse{}, ErrNotInRoom
	}
}

// GetRoomState returns a full snapshot of the room.
func (s *Service) GetRoomState(ctx context.Context, roomId string) (RoomState, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return RoomState{}, ErrRoomNotFound
		}
		return RoomState{}, err
	}

	repoSettings, err := s.roomRepo.GetSettings(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	completed, err := s.roomRepo.GetCompletedSessions(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	history := make([]CompletedSession, 0, len(completed))
	for _, c := range completed {
		history = append(history, CompletedSession(c))
	}

	return RoomState{
		HostId:       rm.HostId,
		GuestId:      rm.GuestId,
		Mode:         rm.Mode,
		CaptureState: rm.CaptureState,
		Settings:     settingsFromRepo(repoSettings),
		History:      history,
	}, nil
}
