package redis

import (
	"context"
	"encoding/json"

	"github.com/snapbooth/server/internal/repository/room"
)

func (r repo) getCaptureSessionKey(roomId string) string {
	return "room:" + roomId + ":capture"
}

func (r repo) getHistoryKey(roomId string) string {
	return "room:" + roomId + ":history"
}

func (r repo) SetCaptureSession(ctx context.Context, params *room.SetCaptureSessionParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	captureKey := r.getCaptureSessionKey(params.RoomId)
	pipe.HSet(ctx, captureKey, params.Session)
	pipe.Expire(ctx, captureKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) GetCaptureSession(ctx context.Context, roomId string) (room.CaptureSession, error) {
	var session room.CaptureSession
	if err := r.rc.HGetAll(ctx, r.getCaptureSessionKey(roomId)).Scan(&session); err != nil {
		return room.CaptureSession{}, err
	}

	if session.SessionId == "" {
		return room.CaptureSession{}, room.ErrCaptureSessionNotFound
	}

	return session, nil
}

func (r repo) RemoveCaptureSession(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	return r.rc.Del(ctx, r.getCaptureSessionKey(roomId)).Err()
}

func (r repo) AppendCompletedSession(ctx context.Context, params *room.AppendCompletedSessionParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	data, err := json.Marshal(params.Session)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	historyKey := r.getHistoryKey(params.RoomId)
	pipe.RPush(ctx, historyKey, data)
	pipe.Expire(ctx, historyKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) GetCompletedSessions(ctx context.Context, roomId string) ([]room.CompletedSession, error) {
	entries, err := r.rc.LRange(ctx, r.getHistoryKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]room.CompletedSession, 0, len(entries))
	for _, entry := range entries {
		var session room.CompletedSession
		if err := json.Unmarshal([]byte(entry), &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
