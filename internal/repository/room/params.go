package room

type SetRoomParams struct {
	RoomId    string
	HostId    string
	Mode      string
	CreatedAt int64
}

type SetGuestParams struct {
	RoomId  string
	GuestId string
}

type SetParticipantParams struct {
	UserId string
	RoomId string
	Role   string
}

type SetSettingsParams struct {
	RoomId   string
	Settings Settings
}

type SetCaptureSessionParams struct {
	RoomId  string
	Session CaptureSession
}

type AppendCompletedSessionParams struct {
	RoomId  string
	Session CompletedSession
}
