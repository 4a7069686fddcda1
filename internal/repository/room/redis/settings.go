package redis

import (
	"context"

	"github.com/snapbooth/server/internal/repository/room"
)

func (r repo) getSettingsKey(roomId string) string {
	return "room:" + roomId + ":settings"
}

func (r repo) SetSettings(ctx context.Context, params *room.SetSettingsParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	settingsKey := r.getSettingsKey(params.RoomId)
	pipe.HSet(ctx, settingsKey, params.Settings)
	pipe.Expire(ctx, settingsKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) GetSettings(ctx context.Context, roomId string) (room.Settings, error) {
	settingsKey := r.getSettingsKey(roomId)

	exists, err := r.rc.Exists(ctx, settingsKey).Result()
	if err != nil {
		return room.Settings{}, err
	}
	if exists == 0 {
		return room.Settings{}, room.ErrSettingsNotFound
	}

	var settings room.Settings
	if err := r.rc.HGetAll(ctx, settingsKey).Scan(&settings); err != nil {
		return room.Settings{}, err
	}

	return settings, nil
}
