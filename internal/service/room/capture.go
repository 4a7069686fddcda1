package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/room"
)

type StartCaptureParams struct {
	RoomId   string
	SenderId string
}

type StartCaptureResponse struct {
	SessionId     string
	CountdownFrom int
	TickInterval  time.Duration
	Conns         []*websocket.Conn
}

// StartCapture begins a capture cycle: a new capture session is recorded and
// the room enters the countdown sub-state. The caller drives the countdown
// broadcasts and confirms the capture trigger via ConfirmCapture.
func (s *Service) StartCapture(ctx context.Context, params *StartCaptureParams) (StartCaptureResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return StartCaptureResponse{}, ErrRoomNotFound
		}
		return StartCaptureResponse{}, err
	}

	// the host UI disables the trigger, but the server re-validates anyway
	if params.SenderId != rm.HostId {
		return StartCaptureResponse{}, ErrNotHost
	}
	if rm.Mode != ModeV3 {
		return StartCaptureResponse{}, ErrLegacyMode
	}
	if rm.GuestId == "" {
		return StartCaptureResponse{}, ErrNoGuest
	}
	if rm.CaptureState != room.CaptureStateIdle {
		return StartCaptureResponse{}, ErrCaptureBusy
	}

	sessionId := uuid.NewString()
	if err := s.roomRepo.SetCaptureSession(ctx, &room.SetCaptureSessionParams{
		RoomId: params.RoomId,
		Session: room.CaptureSession{
			SessionId: sessionId,
			GuestId:   rm.GuestId,
			Status:    room.SessionStatusInProgress,
		},
	}); err != nil {
		return StartCaptureResponse{}, err
	}

	if err := s.roomRepo.UpdateCaptureState(ctx, params.RoomId, room.CaptureStateCountdown); err != nil {
		return StartCaptureResponse{}, err
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	s.logger.InfoContext(ctx, "capture started",
		"room_id", params.RoomId, "session_id", sessionId, "guest_id", rm.GuestId)

	return StartCaptureResponse{
		SessionId:     sessionId,
		CountdownFrom: s.cfg.CountdownFrom,
		TickInterval:  s.cfg.CountdownInterval,
		Conns:         s.getRoomConns(&rm),
	}, nil
}

type ConfirmCaptureParams struct {
	RoomId    string
	SessionId string
}

type ConfirmCaptureResponse struct {
	Conns []*websocket.Conn
}

// ConfirmCapture transitions countdown to awaiting-uploads, provided the
// same session is still live. It fails with ErrCaptureAborted when the
// cycle was discarded mid-countdown (guest departure, room teardown), which
// guarantees capture-now is broadcast at most once per cycle.
func (s *Service) ConfirmCapture(ctx context.Context, params *ConfirmCaptureParams) (ConfirmCaptureResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return ConfirmCaptureResponse{}, ErrCaptureAborted
		}
		return ConfirmCaptureResponse{}, err
	}

	if rm.CaptureState != room.CaptureStateCountdown {
		return ConfirmCaptureResponse{}, ErrCaptureAborted
	}

	session, err := s.roomRepo.GetCaptureSession(ctx, params.RoomId)
	if err != nil || session.SessionId != params.SessionId {
		return ConfirmCaptureResponse{}, ErrCaptureAborted
	}

	if err := s.roomRepo.UpdateCaptureState(ctx, params.RoomId, room.CaptureStateAwaitingUploads); err != nil {
		return ConfirmCaptureResponse{}, err
	}

	return ConfirmCaptureResponse{Conns: s.getRoomConns(&rm)}, nil
}

type PhotoUploadedParams struct {
	RoomId    string
	SenderId  string
	SessionId string
	PhotoUrl  string
}

type PhotoUploadedResponse struct {
	SessionId     string
	BothUploaded  bool
	HostPhotoUrl  string
	GuestPhotoUrl string
	// FrameLayoutId is set when both uploads are in, for the frame
	// finalization hand-off.
	FrameLayoutId string
	Conns         []*websocket.Conn
}

// PhotoUploaded records one role's upload for the active capture session.
// Once both role slots are filled the room enters the merging sub-state and
// the caller hands off to the merge collaborator.
func (s *Service) PhotoUploaded(ctx context.Context, params *PhotoUploadedParams) (PhotoUploadedResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return PhotoUploadedResponse{}, ErrRoomNotFound
		}
		return PhotoUploadedResponse{}, err
	}

	if rm.CaptureState != room.CaptureStateAwaitingUploads {
		return PhotoUploadedResponse{}, ErrUnknownSession
	}

	session, err := s.roomRepo.GetCaptureSession(ctx, params.RoomId)
	if err != nil || session.SessionId != params.SessionId {
		return PhotoUploadedResponse{}, ErrUnknownSession
	}

	switch params.SenderId {
	case rm.HostId:
		if session.HostPhotoUrl != "" {
			return PhotoUploadedResponse{}, ErrDuplicateUpload
		}
		session.HostPhotoUrl = params.PhotoUrl
	case session.GuestId:
		if session.GuestPhotoUrl != "" {
			return PhotoUploadedResponse{}, ErrDuplicateUpload
		}
		session.GuestPhotoUrl = params.PhotoUrl
	default:
		return PhotoUploadedResponse{}, ErrNotInRoom
	}

	if err := s.roomRepo.SetCaptureSession(ctx, &room.SetCaptureSessionParams{
		RoomId:  params.RoomId,
		Session: session,
	}); err != nil {
		return PhotoUploadedResponse{}, err
	}

	resp := PhotoUploadedResponse{
		SessionId:     session.SessionId,
		HostPhotoUrl:  session.HostPhotoUrl,
		GuestPhotoUrl: session.GuestPhotoUrl,
		Conns:         s.getRoomConns(&rm),
	}

	if session.HostPhotoUrl != "" && session.GuestPhotoUrl != "" {
		if err := s.roomRepo.UpdateCaptureState(ctx, params.RoomId, room.CaptureStateMerging); err != nil {
			return PhotoUploadedResponse{}, err
		}

		settings, err := s.roomRepo.GetSettings(ctx, params.RoomId)
		if err != nil {
			return PhotoUploadedResponse{}, err
		}

		resp.BothUploaded = true
		resp.FrameLayoutId = settings.FrameLayoutId
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	return resp, nil
}

type RecordMergedParams struct {
	RoomId    string
	SessionId string
	MergedUrl string
}

type RecordMergedResponse struct {
	Conns []*websocket.Conn
}

// RecordMerged stores the merge result for a session still in the merging
// sub-state. A session discarded while the merge collaborator was running
// surfaces as ErrCaptureAborted.
func (s *Service) RecordMerged(ctx context.Context, params *RecordMergedParams) (RecordMergedResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, session, err := s.getLiveMergingSession(ctx, params.RoomId, params.SessionId)
	if err != nil {
		return RecordMergedResponse{}, err
	}

	session.MergedUrl = params.MergedUrl
	if err := s.roomRepo.SetCaptureSession(ctx, &room.SetCaptureSessionParams{
		RoomId:  params.RoomId,
		Session: session,
	}); err != nil {
		return RecordMergedResponse{}, err
	}

	return RecordMergedResponse{Conns: s.getRoomConns(&rm)}, nil
}

type CompleteCaptureParams struct {
	RoomId         string
	SessionId      string
	FrameResultUrl string
}

type CompleteCaptureResponse struct {
	GuestId string
	Conns   []*websocket.Conn
}

// CompleteCapture finalizes the session: it is archived into the room
// history and the capture sub-state returns to idle.
func (s *Service) CompleteCapture(ctx context.Context, params *CompleteCaptureParams) (CompleteCaptureResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, session, err := s.getLiveMergingSession(ctx, params.RoomId, params.SessionId)
	if err != nil {
		return CompleteCaptureResponse{}, err
	}

	session.FrameResultUrl = params.FrameResultUrl
	session.Status = room.SessionStatusCompleted

	if err := s.roomRepo.AppendCompletedSession(ctx, &room.AppendCompletedSessionParams{
		RoomId: params.RoomId,
		Session: room.CompletedSession{
			SessionId:      session.SessionId,
			GuestId:        session.GuestId,
			FrameResultUrl: session.FrameResultUrl,
			CompletedAt:    time.Now().Unix(),
		},
	}); err != nil {
		return CompleteCaptureResponse{}, err
	}

	if err := s.roomRepo.RemoveCaptureSession(ctx, params.RoomId); err != nil {
		return CompleteCaptureResponse{}, err
	}

	if err := s.roomRepo.UpdateCaptureState(ctx, params.RoomId, room.CaptureStateIdle); err != nil {
		return CompleteCaptureResponse{}, err
	}

	if err := s.roomRepo.TouchRoom(ctx, params.RoomId); err != nil {
		s.logger.WarnContext(ctx, "failed to touch room", "error", err)
	}

	s.logger.InfoContext(ctx, "capture session completed",
		"room_id", params.RoomId, "session_id", session.SessionId)

	return CompleteCaptureResponse{
		GuestId: session.GuestId,
		Conns:   s.getRoomConns(&rm),
	}, nil
}

func (s *Service) getLiveMergingSession(ctx context.Context, roomId, sessionId string) (room.Room, room.CaptureSession, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return room.Room{}, room.CaptureSession{}, ErrCaptureAborted
		}
		return room.Room{}, room.CaptureSession{}, err
	}

	if rm.CaptureState != room.CaptureStateMerging {
		return room.Room{}, room.CaptureSession{}, ErrCaptureAborted
	}

	session, err := s.roomRepo.GetCaptureSession(ctx, roomId)
	if err != nil || session.SessionId != sessionId {
		return room.Room{}, room.CaptureSession{}, ErrCaptureAborted
	}

	return rm, session, nil
}

type FailCaptureParams struct {
	RoomId    string
	SessionId string
}

type FailCaptureResponse struct {
	Conns []*websocket.Conn
}

// FailCapture abandons the named session after an upload or merge failure.
// The session is not retried transparently; the host must restart the
// capture cycle.
func (s *Service) FailCapture(ctx context.Context, params *FailCaptureParams) (FailCaptureResponse, error) {
	unlock := s.lockRoom(params.RoomId)
	defer unlock()

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return FailCaptureResponse{}, ErrCaptureAborted
		}
		return FailCaptureResponse{}, err
	}

	session, err := s.roomRepo.GetCaptureSession(ctx, params.RoomId)
	if err != nil || session.SessionId != params.SessionId {
		return FailCaptureResponse{}, ErrCaptureAborted
	}

	if err := s.abortCapture(ctx, params.RoomId); err != nil {
		return FailCaptureResponse{}, err
	}

	s.logger.WarnContext(ctx, "capture session failed",
		"room_id", params.RoomId, "session_id", params.SessionId)

	return FailCaptureResponse{Conns: s.getRoomConns(&rm)}, nil
}

// abortCapture discards any in-flight capture session without completing
// it. Callers hold the room lock.
func (s *Service) abortCapture(ctx context.Context, roomId string) error {
	if err := s.roomRepo.RemoveCaptureSession(ctx, roomId); err != nil {
		return err
	}

	return s.roomRepo.UpdateCaptureState(ctx, roomId, room.CaptureStateIdle)
}
