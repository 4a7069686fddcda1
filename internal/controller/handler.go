package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/snapbooth/server/internal/protocol"
	"github.com/snapbooth/server/internal/service/room"
)

const joinTimeout = 10 * time.Second

// serveWS upgrades the connection and runs the join handshake: the first
// frame must be a join message, answered with joined or error. After a
// successful join the connection is served by the message router until it
// drops, at which point the participant is disconnected from the room.
func (c *controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	defer c.releaseConn(conn)

	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to read join message", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := protocol.Decode(data)
	if err != nil {
		c.writeError(r.Context(), conn, err)
		return
	}

	join, ok := msg.(protocol.Join)
	if !ok {
		c.writeError(r.Context(), conn, fmt.Errorf("expected join, got %s", msg.MessageType()))
		return
	}

	if validationErrors, ok := c.validate.Validate(join); !ok {
		c.writeError(r.Context(), conn, validationErrors[0])
		return
	}

	joinResp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		RoomId: join.RoomId,
		UserId: join.UserId,
		Role:   string(join.Role),
		Mode:   string(join.Mode),
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "join rejected", "error", err)
		c.writeError(r.Context(), conn, err)
		return
	}
	defer c.disconnect(r.Context(), joinResp.UserId, joinResp.RoomId)

	if err := c.roomService.ConnectParticipant(r.Context(), &room.ConnectParticipantParams{
		Conn:   conn,
		UserId: joinResp.UserId,
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to connect participant", "error", err)
		return
	}

	joined := protocol.Joined{
		RoomId: joinResp.RoomId,
		UserId: joinResp.UserId,
		Role:   protocol.Role(joinResp.Role),
		Mode:   protocol.Mode(joinResp.Mode),
		HostId: joinResp.HostId,
	}
	if joinResp.Settings != nil {
		joined.HostSettings = settingsToProtocol(*joinResp.Settings)
	}
	if err := c.writeToConn(r.Context(), conn, joined); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write joined", "error", err)
		return
	}

	if joinResp.HostConn != nil {
		if err := c.writeToConn(r.Context(), joinResp.HostConn, protocol.PeerJoined{
			UserId: joinResp.UserId,
			Role:   protocol.Role(joinResp.Role),
		}); err != nil {
			c.logger.WarnContext(r.Context(), "failed to notify host", "error", err)
		}
	}

	ctx := context.WithValue(r.Context(), roomIdCtxKey, joinResp.RoomId)
	ctx = context.WithValue(ctx, userIdCtxKey, joinResp.UserId)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(r.Context(), "conn closed", "error", err)
	}
}

func (c *controller) disconnect(ctx context.Context, userId, roomId string) {
	resp, err := c.roomService.Disconnect(ctx, &room.DisconnectParams{
		UserId: userId,
		RoomId: roomId,
	})
	if err != nil {
		if !errors.Is(err, room.ErrRoomNotFound) {
			c.logger.WarnContext(ctx, "failed to disconnect", "error", err)
		}
		return
	}

	if resp.PeerConn == nil {
		return
	}

	if resp.IsRoomDeleted {
		// the guest treats the host's departure as session-over
		if err := c.writeToConn(ctx, resp.PeerConn, protocol.PeerLeft{UserId: userId}); err != nil {
			c.logger.WarnContext(ctx, "failed to notify peer", "error", err)
		}
		return
	}

	if err := c.writeToConn(ctx, resp.PeerConn, protocol.GuestLeft{UserId: userId}); err != nil {
		c.logger.WarnContext(ctx, "failed to notify host", "error", err)
	}
}

func settingsToProtocol(s room.Settings) *protocol.HostSettings {
	return &protocol.HostSettings{
		ChromaKeyEnabled:    s.ChromaKeyEnabled,
		ChromaKeyColor:      s.ChromaKeyColor,
		ChromaKeySimilarity: s.ChromaKeySimilarity,
		ChromaKeySmoothness: s.ChromaKeySmoothness,
		FrameLayoutId:       s.FrameLayoutId,
		RecordingDurationMs: s.RecordingDurationMs,
		CaptureIntervalMs:   s.CaptureIntervalMs,
	}
}

func settingsFromProtocol(s protocol.HostSettings) room.Settings {
	return room.Settings{
		ChromaKeyEnabled:    s.ChromaKeyEnabled,
		ChromaKeyColor:      s.ChromaKeyColor,
		ChromaKeySimilarity: s.ChromaKeySimilarity,
		ChromaKeySmoothness: s.ChromaKeySmoothness,
		FrameLayoutId:       s.FrameLayoutId,
		RecordingDurationMs: s.RecordingDurationMs,
		CaptureIntervalMs:   s.CaptureIntervalMs,
	}
}
