package controller

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/service/room"
	"github.com/snapbooth/server/pkg/validator"
	"github.com/snapbooth/server/pkg/wsrouter"
)

type iRoomService interface {
	GenerateRoomCode(context.Context) (string, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	ConnectParticipant(context.Context, *room.ConnectParticipantParams) error
	Disconnect(context.Context, *room.DisconnectParams) (room.DisconnectResponse, error)
	RelaySignal(context.Context, *room.RelaySignalParams) (room.RelaySignalResponse, error)
	StartCapture(context.Context, *room.StartCaptureParams) (room.StartCaptureResponse, error)
	ConfirmCapture(context.Context, *room.ConfirmCaptureParams) (room.ConfirmCaptureResponse, error)
	PhotoUploaded(context.Context, *room.PhotoUploadedParams) (room.PhotoUploadedResponse, error)
	RecordMerged(context.Context, *room.RecordMergedParams) (room.RecordMergedResponse, error)
	CompleteCapture(context.Context, *room.CompleteCaptureParams) (room.CompleteCaptureResponse, error)
	FailCapture(context.Context, *room.FailCaptureParams) (room.FailCaptureResponse, error)
	UpdateHostSettings(context.Context, *room.UpdateHostSettingsParams) (room.UpdateHostSettingsResponse, error)
	GetRoomState(context.Context, string) (room.RoomState, error)
}

type iMerger interface {
	Merge(ctx context.Context, hostPhotoUrl, guestPhotoUrl string) (string, error)
	FinalizeFrame(ctx context.Context, mergedUrl, frameLayoutId string) (string, error)
}

type controller struct {
	roomService iRoomService
	merger      iMerger
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter
	logger      *slog.Logger

	// one write lock per connection: countdown/merge goroutines broadcast
	// concurrently with handler replies
	connWriteLocks sync.Map
}

func NewController(roomService iRoomService, merger iMerger, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		merger:      merger,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
