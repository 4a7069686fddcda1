package room

import "errors"

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomAlreadyExists      = errors.New("room already exists")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrSettingsNotFound       = errors.New("settings not found")
	ErrCaptureSessionNotFound = errors.New("capture session not found")
)
