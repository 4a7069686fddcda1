package redis

import (
	"context"
	"time"

	"github.com/snapbooth/server/internal/repository/room"
)

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	roomKey := r.getRoomKey(params.RoomId)

	exists, err := r.rc.Exists(ctx, roomKey).Result()
	if err != nil {
		return err
	}
	if exists != 0 {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomAlreadyExists)
		return room.ErrRoomAlreadyExists
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, roomKey, room.Room{
		HostId:       params.HostId,
		GuestId:      "",
		Mode:         params.Mode,
		CaptureState: room.CaptureStateIdle,
		CreatedAt:    params.CreatedAt,
		LastActivity: params.CreatedAt,
	})
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	roomKey := r.getRoomKey(roomId)

	exists, err := r.rc.Exists(ctx, roomKey).Result()
	if err != nil {
		return room.Room{}, err
	}
	if exists == 0 {
		return room.Room{}, room.ErrRoomNotFound
	}

	var rm room.Room
	if err := r.rc.HGetAll(ctx, roomKey).Scan(&rm); err != nil {
		return room.Room{}, err
	}

	return rm, nil
}

func (r repo) SetGuest(ctx context.Context, params *room.SetGuestParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	return r.rc.HSet(ctx, r.getRoomKey(params.RoomId), "guest_id", params.GuestId).Err()
}

func (r repo) RemoveGuest(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	return r.rc.HSet(ctx, r.getRoomKey(roomId), "guest_id", "").Err()
}

func (r repo) UpdateCaptureState(ctx context.Context, roomId, state string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "state", state)
	return r.rc.HSet(ctx, r.getRoomKey(roomId), "capture_state", state).Err()
}

// TouchRoom refreshes the last-activity timestamp and all room key TTLs.
// The inactivity cleanup job keys off these expirations.
func (r repo) TouchRoom(ctx context.Context, roomId string) error {
	pipe := r.rc.TxPipeline()

	pipe.HSet(ctx, r.getRoomKey(roomId), "last_activity", time.Now().Unix())
	pipe.Expire(ctx, r.getRoomKey(roomId), r.expireDuration)
	pipe.Expire(ctx, r.getSettingsKey(roomId), r.expireDuration)
	pipe.Expire(ctx, r.getCaptureSessionKey(roomId), r.expireDuration)
	pipe.Expire(ctx, r.getHistoryKey(roomId), r.expireDuration)

	return r.executePipe(ctx, pipe)
}

func (r repo) RemoveRoom(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	pipe := r.rc.TxPipeline()

	pipe.Del(ctx, r.getRoomKey(roomId))
	pipe.Del(ctx, r.getSettingsKey(roomId))
	pipe.Del(ctx, r.getCaptureSessionKey(roomId))
	pipe.Del(ctx, r.getHistoryKey(roomId))

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}
