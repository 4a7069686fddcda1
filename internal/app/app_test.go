package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/snapbooth/server/internal/repository/connection/inmemory"
	roomRedis "github.com/snapbooth/server/internal/repository/room/redis"
	"github.com/snapbooth/server/internal/service/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *room.Service {
	t.Helper()
	slog.SetLogLoggerLevel(slog.LevelDebug)
	s := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	roomRepo := roomRedis.NewRepo(r, 2*time.Hour, slog.Default())
	connRepo := inmemory.NewRepo(slog.Default())
	return room.NewService(roomRepo, connRepo, room.Config{
		CountdownFrom:     3,
		CountdownInterval: time.Second,
		RoomCodeLength:    6,
	}, slog.Default())
}

func TestCaptureCycle(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	roomCode, err := service.GenerateRoomCode(ctx)
	require.NoError(t, err)
	assert.Len(t, roomCode, 6)

	// host joins
	hostResp, err := service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "host-1",
		Role:   room.RoleHost,
	})
	require.NoError(t, err)
	assert.Equal(t, room.ModeV3, hostResp.Mode)
	require.NoError(t, service.ConnectParticipant(ctx, &room.ConnectParticipantParams{
		Conn:   &websocket.Conn{},
		UserId: "host-1",
	}))
	t.Log("host joined")

	// second host is rejected
	_, err = service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "host-2",
		Role:   room.RoleHost,
	})
	assert.ErrorIs(t, err, room.ErrHostSlotTaken)

	// guest joins and receives the settings snapshot
	guestResp, err := service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "guest-1",
		Role:   room.RoleGuest,
	})
	require.NoError(t, err)
	assert.Equal(t, "host-1", guestResp.HostId)
	require.NotNil(t, guestResp.Settings)
	assert.Equal(t, room.DefaultSettings(), *guestResp.Settings)
	require.NoError(t, service.ConnectParticipant(ctx, &room.ConnectParticipantParams{
		Conn:   &websocket.Conn{},
		UserId: "guest-1",
	}))
	t.Log("guest joined")

	// host starts the capture cycle
	startResp, err := service.StartCapture(ctx, &room.StartCaptureParams{
		RoomId:   roomCode,
		SenderId: "host-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, startResp.SessionId)
	assert.Equal(t, 3, startResp.CountdownFrom)
	assert.Len(t, startResp.Conns, 2)

	// a second start while busy is rejected
	_, err = service.StartCapture(ctx, &room.StartCaptureParams{
		RoomId:   roomCode,
		SenderId: "host-1",
	})
	assert.ErrorIs(t, err, room.ErrCaptureBusy)

	_, err = service.ConfirmCapture(ctx, &room.ConfirmCaptureParams{
		RoomId:    roomCode,
		SessionId: startResp.SessionId,
	})
	require.NoError(t, err)
	t.Log("capture triggered")

	// both uploads arrive
	upResp, err := service.PhotoUploaded(ctx, &room.PhotoUploadedParams{
		RoomId:    roomCode,
		SenderId:  "host-1",
		SessionId: startResp.SessionId,
		PhotoUrl:  "https://cdn/host.webm",
	})
	require.NoError(t, err)
	assert.False(t, upResp.BothUploaded)

	// duplicate upload of the same slot is rejected
	_, err = service.PhotoUploaded(ctx, &room.PhotoUploadedParams{
		RoomId:    roomCode,
		SenderId:  "host-1",
		SessionId: startResp.SessionId,
		PhotoUrl:  "https://cdn/host-again.webm",
	})
	assert.ErrorIs(t, err, room.ErrDuplicateUpload)

	upResp, err = service.PhotoUploaded(ctx, &room.PhotoUploadedParams{
		RoomId:    roomCode,
		SenderId:  "guest-1",
		SessionId: startResp.SessionId,
		PhotoUrl:  "https://cdn/guest.webm",
	})
	require.NoError(t, err)
	assert.True(t, upResp.BothUploaded)
	assert.Equal(t, "https://cdn/host.webm", upResp.HostPhotoUrl)
	assert.Equal(t, "https://cdn/guest.webm", upResp.GuestPhotoUrl)
	assert.Equal(t, "classic-strip", upResp.FrameLayoutId)
	t.Log("both photos uploaded")

	_, err = service.RecordMerged(ctx, &room.RecordMergedParams{
		RoomId:    roomCode,
		SessionId: startResp.SessionId,
		MergedUrl: "https://cdn/merged.webm",
	})
	require.NoError(t, err)

	completeResp, err := service.CompleteCapture(ctx, &room.CompleteCaptureParams{
		RoomId:         roomCode,
		SessionId:      startResp.SessionId,
		FrameResultUrl: "https://cdn/framed.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest-1", completeResp.GuestId)
	t.Log("capture completed")

	state, err := service.GetRoomState(ctx, roomCode)
	require.NoError(t, err)
	assert.Equal(t, room.CaptureStateIdle, state.CaptureState)
	require.Len(t, state.History, 1)
	assert.Equal(t, startResp.SessionId, state.History[0].SessionId)
	assert.Equal(t, "https://cdn/framed.png", state.History[0].FrameResultUrl)
}

func TestGuestDepartureAbortsCapture(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	roomCode, err := service.GenerateRoomCode(ctx)
	require.NoError(t, err)

	_, err = service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "host-1",
		Role:   room.RoleHost,
	})
	require.NoError(t, err)
	require.NoError(t, service.ConnectParticipant(ctx, &room.ConnectParticipantParams{
		Conn:   &websocket.Conn{},
		UserId: "host-1",
	}))

	_, err = service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "guest-1",
		Role:   room.RoleGuest,
	})
	require.NoError(t, err)
	require.NoError(t, service.ConnectParticipant(ctx, &room.ConnectParticipantParams{
		Conn:   &websocket.Conn{},
		UserId: "guest-1",
	}))

	startResp, err := service.StartCapture(ctx, &room.StartCaptureParams{
		RoomId:   roomCode,
		SenderId: "host-1",
	})
	require.NoError(t, err)

	// guest leaves mid-countdown
	discResp, err := service.Disconnect(ctx, &room.DisconnectParams{
		UserId: "guest-1",
		RoomId: roomCode,
	})
	require.NoError(t, err)
	assert.Equal(t, room.RoleGuest, discResp.Role)
	assert.False(t, discResp.IsRoomDeleted)
	assert.True(t, discResp.CaptureAborted)

	// the pending countdown confirmation must not fire capture-now
	_, err = service.ConfirmCapture(ctx, &room.ConfirmCaptureParams{
		RoomId:    roomCode,
		SessionId: startResp.SessionId,
	})
	assert.ErrorIs(t, err, room.ErrCaptureAborted)

	// room stays hosted; the next guest can join and capture again
	nextGuest, err := service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "guest-2",
		Role:   room.RoleGuest,
	})
	require.NoError(t, err)
	assert.Equal(t, "host-1", nextGuest.HostId)

	state, err := service.GetRoomState(ctx, roomCode)
	require.NoError(t, err)
	assert.Equal(t, room.CaptureStateIdle, state.CaptureState)
	assert.Equal(t, "guest-2", state.GuestId)
}

func TestHostDepartureDeletesRoom(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	roomCode, err := service.GenerateRoomCode(ctx)
	require.NoError(t, err)

	_, err = service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "host-1",
		Role:   room.RoleHost,
	})
	require.NoError(t, err)
	require.NoError(t, service.ConnectParticipant(ctx, &room.ConnectParticipantParams{
		Conn:   &websocket.Conn{},
		UserId: "host-1",
	}))

	_, err = service.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomCode,
		UserId: "guest-1",
		Role:   room.RoleGuest,
	})
	require.NoError(t, err)

	discResp, err := service.Disconnect(ctx, &room.DisconnectParams{
		UserId: "host-1",
		RoomId: roomCode,
	})
	require.NoError(t, err)
	assert.True(t, discResp.IsRoomDeleted)

	_, err = service.GetRoomState(ctx, roomCode)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}
