package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/room"
	"github.com/snapbooth/server/pkg/randstr"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrHostSlotTaken   = errors.New("host slot is already taken")
	ErrGuestSlotTaken  = errors.New("guest slot is already taken")
	ErrNotHost         = errors.New("operation is host-only")
	ErrNotInRoom       = errors.New("sender is not in the room")
	ErrNoGuest         = errors.New("no guest in the room")
	ErrLegacyMode      = errors.New("operation requires v3 mode")
	ErrCaptureBusy     = errors.New("capture already in progress")
	ErrCaptureAborted  = errors.New("capture session aborted")
	ErrDuplicateUpload = errors.New("photo already uploaded for this role")
	ErrUnknownSession  = errors.New("unknown capture session")
)

type iRoomRepo interface {
	// room
	SetRoom(context.Context, *room.SetRoomParams) error
	GetRoom(context.Context, string) (room.Room, error)
	SetGuest(context.Context, *room.SetGuestParams) error
	RemoveGuest(context.Context, string) error
	UpdateCaptureState(ctx context.Context, roomId, state string) error
	TouchRoom(context.Context, string) error
	RemoveRoom(context.Context, string) error
	// participant
	SetParticipant(context.Context, *room.SetParticipantParams) error
	GetParticipant(context.Context, string) (room.Participant, error)
	RemoveParticipant(context.Context, string) error
	// settings
	SetSettings(context.Context, *room.SetSettingsParams) error
	GetSettings(context.Context, string) (room.Settings, error)
	// capture session
	SetCaptureSession(context.Context, *room.SetCaptureSessionParams) error
	GetCaptureSession(context.Context, string) (room.CaptureSession, error)
	RemoveCaptureSession(context.Context, string) error
	AppendCompletedSession(context.Context, *room.AppendCompletedSessionParams) error
	GetCompletedSessions(context.Context, string) ([]room.CompletedSession, error)
}

type iConnRepo interface {
	Add(*websocket.Conn, string) error
	RemoveByUserId(string) error
	RemoveByConn(*websocket.Conn) error
	GetConn(string) (*websocket.Conn, error)
	GetUserId(*websocket.Conn) (string, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	CountdownFrom     int
	CountdownInterval time.Duration
	RoomCodeLength    int
}

type Service struct {
	roomRepo  iRoomRepo
	connRepo  iConnRepo
	generator iGenerator
	logger    *slog.Logger
	cfg       Config

	// one mutex per room code: no two messages for the same room are
	// processed concurrently, different rooms run independently.
	roomLocks sync.Map
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, cfg Config, logger *slog.Logger) *Service {
	s := Service{
		roomRepo: roomRepo,
		connRepo: connRepo,
		logger:   logger,
		cfg:      cfg,
	}

	letterBytes := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

func (s *Service) lockRoom(roomId string) func() {
	muAny, _ := s.roomLocks.LoadOrStore(roomId, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// getRoomConns returns the connections of the current occupants. Occupants
// whose connection is already gone are skipped.
func (s *Service) getRoomConns(rm *room.Room) []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, 2)

	if conn, err := s.connRepo.GetConn(rm.HostId); err == nil {
		conns = append(conns, conn)
	}
	if rm.GuestId != "" {
		if conn, err := s.connRepo.GetConn(rm.GuestId); err == nil {
			conns = append(conns, conn)
		}
	}

	return conns
}

// GenerateRoomCode allocates a fresh human-enterable room code, retrying on
// the rare collision with a live room.
func (s *Service) GenerateRoomCode(ctx context.Context) (string, error) {
	for {
		code := s.generator.GenerateRandomString(s.cfg.RoomCodeLength)
		if _, err := s.roomRepo.GetRoom(ctx, code); err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				return code, nil
			}
			return "", err
		}
	}
}
