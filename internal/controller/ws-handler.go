package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/protocol"
	"github.com/snapbooth/server/internal/service/room"
)

func (c *controller) handlePing(ctx context.Context, conn *websocket.Conn, _ protocol.Ping) error {
	return c.writeToConn(ctx, conn, protocol.Pong{})
}

func (c *controller) handleLeave(ctx context.Context, conn *websocket.Conn, _ protocol.Leave) error {
	// closing the connection makes the serve loop exit, which runs the
	// deferred disconnect
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(5*time.Second))
}

func (c *controller) handleOffer(ctx context.Context, conn *websocket.Conn, input protocol.Offer) error {
	input.From = c.getUserIdFromCtx(ctx)
	return c.relay(ctx, input.To, input)
}

func (c *controller) handleAnswer(ctx context.Context, conn *websocket.Conn, input protocol.Answer) error {
	input.From = c.getUserIdFromCtx(ctx)
	return c.relay(ctx, input.To, input)
}

func (c *controller) handleIce(ctx context.Context, conn *websocket.Conn, input protocol.Ice) error {
	input.From = c.getUserIdFromCtx(ctx)
	return c.relay(ctx, input.To, input)
}

// relay forwards a negotiation message verbatim to its recipient, if and
// only if the recipient currently occupies the room.
func (c *controller) relay(ctx context.Context, recipientId string, msg protocol.Message) error {
	relayResp, err := c.roomService.RelaySignal(ctx, &room.RelaySignalParams{
		RoomId:      c.getRoomIdFromCtx(ctx),
		SenderId:    c.getUserIdFromCtx(ctx),
		RecipientId: recipientId,
	})
	if err != nil {
		return fmt.Errorf("failed to relay %s: %w", msg.MessageType(), err)
	}

	if relayResp.RecipientConn == nil {
		return nil
	}

	return c.writeToConn(ctx, relayResp.RecipientConn, msg)
}

func (c *controller) handleStartCapture(ctx context.Context, conn *websocket.Conn, _ protocol.StartCapture) error {
	roomId := c.getRoomIdFromCtx(ctx)

	startResp, err := c.roomService.StartCapture(ctx, &room.StartCaptureParams{
		RoomId:   roomId,
		SenderId: c.getUserIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	go c.runCountdown(context.WithoutCancel(ctx), roomId, startResp)

	return nil
}

// runCountdown emits countdown ticks in strictly decreasing order, then
// exactly one capture-now. The confirm step re-validates that the cycle is
// still live, so a cycle abandoned mid-countdown never triggers a capture.
func (c *controller) runCountdown(ctx context.Context, roomId string, startResp room.StartCaptureResponse) {
	for value := startResp.CountdownFrom; value >= 1; value-- {
		c.broadcast(ctx, startResp.Conns, protocol.CountdownTick{
			SessionId: startResp.SessionId,
			Value:     value,
		})
		time.Sleep(startResp.TickInterval)
	}

	confirmResp, err := c.roomService.ConfirmCapture(ctx, &room.ConfirmCaptureParams{
		RoomId:    roomId,
		SessionId: startResp.SessionId,
	})
	if err != nil {
		if !errors.Is(err, room.ErrCaptureAborted) {
			c.logger.WarnContext(ctx, "failed to confirm capture", "error", err)
		}
		return
	}

	c.broadcast(ctx, confirmResp.Conns, protocol.CaptureNow{SessionId: startResp.SessionId})
}

func (c *controller) handlePhotoUploaded(ctx context.Context, conn *websocket.Conn, input protocol.PhotoUploaded) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return validationErrors[0]
	}

	roomId := c.getRoomIdFromCtx(ctx)

	uploadResp, err := c.roomService.PhotoUploaded(ctx, &room.PhotoUploadedParams{
		RoomId:    roomId,
		SenderId:  c.getUserIdFromCtx(ctx),
		SessionId: input.SessionId,
		PhotoUrl:  input.PhotoUrl,
	})
	if err != nil {
		return fmt.Errorf("failed to record photo upload: %w", err)
	}

	if uploadResp.BothUploaded {
		go c.runMerge(context.WithoutCancel(ctx), roomId, uploadResp)
	}

	return nil
}

// runMerge drives the merge collaborator hand-off while the room keeps
// accepting leave/disconnect events; every step re-validates that the
// session is still live.
func (c *controller) runMerge(ctx context.Context, roomId string, uploadResp room.PhotoUploadedResponse) {
	mergedUrl, err := c.merger.Merge(ctx, uploadResp.HostPhotoUrl, uploadResp.GuestPhotoUrl)
	if err != nil {
		c.failCapture(ctx, roomId, uploadResp.SessionId, fmt.Errorf("merge failed: %w", err))
		return
	}

	mergedResp, err := c.roomService.RecordMerged(ctx, &room.RecordMergedParams{
		RoomId:    roomId,
		SessionId: uploadResp.SessionId,
		MergedUrl: mergedUrl,
	})
	if err != nil {
		return
	}

	c.broadcast(ctx, mergedResp.Conns, protocol.PhotosMerged{
		SessionId: uploadResp.SessionId,
		MergedUrl: mergedUrl,
	})

	frameResultUrl, err := c.merger.FinalizeFrame(ctx, mergedUrl, uploadResp.FrameLayoutId)
	if err != nil {
		c.failCapture(ctx, roomId, uploadResp.SessionId, fmt.Errorf("frame finalization failed: %w", err))
		return
	}

	completeResp, err := c.roomService.CompleteCapture(ctx, &room.CompleteCaptureParams{
		RoomId:         roomId,
		SessionId:      uploadResp.SessionId,
		FrameResultUrl: frameResultUrl,
	})
	if err != nil {
		return
	}

	c.broadcast(ctx, completeResp.Conns, protocol.SessionComplete{
		SessionId:      uploadResp.SessionId,
		GuestId:        completeResp.GuestId,
		FrameResultUrl: frameResultUrl,
	})
}

func (c *controller) failCapture(ctx context.Context, roomId, sessionId string, cause error) {
	c.logger.WarnContext(ctx, "capture cycle failed", "room_id", roomId, "session_id", sessionId, "error", cause)

	failResp, err := c.roomService.FailCapture(ctx, &room.FailCaptureParams{
		RoomId:    roomId,
		SessionId: sessionId,
	})
	if err != nil {
		return
	}

	c.broadcast(ctx, failResp.Conns, protocol.Error{Message: cause.Error()})
}

func (c *controller) handleHostSettingsSync(ctx context.Context, conn *websocket.Conn, input protocol.HostSettingsSync) error {
	if validationErrors, ok := c.validate.Validate(input.Settings); !ok {
		return validationErrors[0]
	}

	settingsResp, err := c.roomService.UpdateHostSettings(ctx, &room.UpdateHostSettingsParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		SenderId: c.getUserIdFromCtx(ctx),
		Settings: settingsFromProtocol(input.Settings),
	})
	if err != nil {
		return fmt.Errorf("failed to update host settings: %w", err)
	}

	if settingsResp.GuestConn != nil {
		return c.writeToConn(ctx, settingsResp.GuestConn, input.Settings)
	}

	return nil
}
