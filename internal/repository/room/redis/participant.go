package redis

import (
	"context"

	"github.com/snapbooth/server/internal/repository/room"
)

func (r repo) getParticipantKey(userId string) string {
	return "participant:" + userId
}

func (r repo) SetParticipant(ctx context.Context, params *room.SetParticipantParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	participantKey := r.getParticipantKey(params.UserId)
	pipe.HSet(ctx, participantKey, room.Participant{
		RoomId: params.RoomId,
		Role:   params.Role,
	})
	pipe.Expire(ctx, participantKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) GetParticipant(ctx context.Context, userId string) (room.Participant, error) {
	var participant room.Participant
	if err := r.rc.HGetAll(ctx, r.getParticipantKey(userId)).Scan(&participant); err != nil {
		return room.Participant{}, err
	}

	if participant.RoomId == "" {
		return room.Participant{}, room.ErrParticipantNotFound
	}

	return participant, nil
}

func (r repo) RemoveParticipant(ctx context.Context, userId string) error {
	r.logger.DebugContext(ctx, "called", "user_id", userId)
	res, err := r.rc.Del(ctx, r.getParticipantKey(userId)).Result()
	if err != nil {
		return err
	}

	if res == 0 {
		return room.ErrParticipantNotFound
	}

	return nil
}
