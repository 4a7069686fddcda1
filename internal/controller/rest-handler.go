package controller

import (
	"net/http"

	"github.com/snapbooth/server/pkg/rest"
)

type createRoomResponse struct {
	RoomCode string `json:"room_code"`
}

// createRoom allocates an unused room code. The room itself is created
// lazily when the host opens the websocket and sends a join message.
func (c *controller) createRoom(w http.ResponseWriter, r *http.Request) {
	roomCode, err := c.roomService.GenerateRoomCode(r.Context())
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to generate room code", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to generate room code"})
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createRoomResponse{
		RoomCode: roomCode,
	}})
}
