package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators carried in the envelope.
const (
	TypeJoin             = "join"
	TypeJoined           = "joined"
	TypeLeave            = "leave"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeIce              = "ice"
	TypePeerJoined       = "peer-joined"
	TypePeerLeft         = "peer-left"
	TypeGuestLeft        = "guest-left"
	TypeStartCapture     = "start-capture"
	TypeCountdownTick    = "countdown-tick"
	TypeCaptureNow       = "capture-now"
	TypePhotoUploaded    = "photo-uploaded"
	TypePhotosMerged     = "photos-merged"
	TypeSessionComplete  = "session-complete"
	TypeHostSettingsSync = "host-settings-sync"
	TypeHostSettings     = "host-settings"
	TypeError            = "error"
	TypePing             = "ping"
	TypePong             = "pong"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type Mode string

const (
	ModeLegacy Mode = "legacy"
	ModeV3     Mode = "v3"
)

// Envelope is the wire format for every signaling message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is the closed set of signaling payloads. Only types in this
// package implement it, so dispatch sites can switch exhaustively.
type Message interface {
	MessageType() string
}

type Join struct {
	RoomId string `json:"room_id" validate:"required,len=6,uppercase"`
	UserId string `json:"user_id" validate:"required"`
	Role   Role   `json:"role" validate:"required,oneof=host guest"`
	Mode   Mode   `json:"mode" validate:"omitempty,oneof=legacy v3"`
}

type Joined struct {
	RoomId       string        `json:"room_id"`
	UserId       string        `json:"user_id"`
	Role         Role          `json:"role"`
	Mode         Mode          `json:"mode"`
	HostId       string        `json:"host_id,omitempty"`
	HostSettings *HostSettings `json:"host_settings,omitempty"`
}

type Leave struct{}

type Offer struct {
	From string `json:"from"`
	To   string `json:"to" validate:"required"`
	SDP  string `json:"sdp" validate:"required"`
}

type Answer struct {
	From string `json:"from"`
	To   string `json:"to" validate:"required"`
	SDP  string `json:"sdp" validate:"required"`
}

type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

type Ice struct {
	From      string       `json:"from"`
	To        string       `json:"to" validate:"required"`
	Candidate IceCandidate `json:"candidate"`
}

type PeerJoined struct {
	UserId string `json:"user_id"`
	Role   Role   `json:"role"`
}

type PeerLeft struct {
	UserId string `json:"user_id"`
}

type GuestLeft struct {
	UserId string `json:"user_id"`
}

type StartCapture struct{}

type CountdownTick struct {
	SessionId string `json:"session_id"`
	Value     int    `json:"value"`
}

type CaptureNow struct {
	SessionId string `json:"session_id"`
}

type PhotoUploaded struct {
	SessionId string `json:"session_id" validate:"required"`
	PhotoUrl  string `json:"photo_url" validate:"required,url"`
}

type PhotosMerged struct {
	SessionId string `json:"session_id"`
	MergedUrl string `json:"merged_url"`
}

type SessionComplete struct {
	SessionId      string `json:"session_id"`
	GuestId        string `json:"guest_id"`
	FrameResultUrl string `json:"frame_result_url"`
}

// HostSettings is the host-owned configuration mirrored read-only to the guest.
type HostSettings struct {
	ChromaKeyEnabled    bool    `json:"chroma_key_enabled"`
	ChromaKeyColor      string  `json:"chroma_key_color" validate:"required,hexcolor"`
	ChromaKeySimilarity float64 `json:"chroma_key_similarity" validate:"gte=0,lte=1"`
	ChromaKeySmoothness float64 `json:"chroma_key_smoothness" validate:"gte=0,lte=1"`
	FrameLayoutId       string  `json:"frame_layout_id" validate:"required"`
	RecordingDurationMs int     `json:"recording_duration_ms" validate:"gte=0"`
	CaptureIntervalMs   int     `json:"capture_interval_ms" validate:"gte=0"`
}

type HostSettingsSync struct {
	Settings HostSettings `json:"settings"`
}

type Error struct {
	Message string `json:"message"`
}

type Ping struct{}

type Pong struct{}

func (Join) MessageType() string             { return TypeJoin }
func (Joined) MessageType() string           { return TypeJoined }
func (Leave) MessageType() string            { return TypeLeave }
func (Offer) MessageType() string            { return TypeOffer }
func (Answer) MessageType() string           { return TypeAnswer }
func (Ice) MessageType() string              { return TypeIce }
func (PeerJoined) MessageType() string       { return TypePeerJoined }
func (PeerLeft) MessageType() string         { return TypePeerLeft }
func (GuestLeft) MessageType() string        { return TypeGuestLeft }
func (StartCapture) MessageType() string     { return TypeStartCapture }
func (CountdownTick) MessageType() string    { return TypeCountdownTick }
func (CaptureNow) MessageType() string       { return TypeCaptureNow }
func (PhotoUploaded) MessageType() string    { return TypePhotoUploaded }
func (PhotosMerged) MessageType() string     { return TypePhotosMerged }
func (SessionComplete) MessageType() string  { return TypeSessionComplete }
func (HostSettingsSync) MessageType() string { return TypeHostSettingsSync }
func (HostSettings) MessageType() string     { return TypeHostSettings }
func (Error) MessageType() string            { return TypeError }
func (Ping) MessageType() string             { return TypePing }
func (Pong) MessageType() string             { return TypePong }

// Encode wraps a message in its envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return json.Marshal(Envelope{
		Type:    msg.MessageType(),
		Payload: payload,
	})
}

// Decode parses an envelope into its typed payload. Every known type is
// enumerated here; an unlisted type is an error, never a silent drop.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeJoin:
		msg = &Join{}
	case TypeJoined:
		msg = &Joined{}
	case TypeLeave:
		msg = &Leave{}
	case TypeOffer:
		msg = &Offer{}
	case TypeAnswer:
		msg = &Answer{}
	case TypeIce:
		msg = &Ice{}
	case TypePeerJoined:
		msg = &PeerJoined{}
	case TypePeerLeft:
		msg = &PeerLeft{}
	case TypeGuestLeft:
		msg = &GuestLeft{}
	case TypeStartCapture:
		msg = &StartCapture{}
	case TypeCountdownTick:
		msg = &CountdownTick{}
	case TypeCaptureNow:
		msg = &CaptureNow{}
	case TypePhotoUploaded:
		msg = &PhotoUploaded{}
	case TypePhotosMerged:
		msg = &PhotosMerged{}
	case TypeSessionComplete:
		msg = &SessionComplete{}
	case TypeHostSettingsSync:
		msg = &HostSettingsSync{}
	case TypeHostSettings:
		msg = &HostSettings{}
	case TypeError:
		msg = &Error{}
	case TypePing:
		msg = &Ping{}
	case TypePong:
		msg = &Pong{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
	}

	return deref(msg), nil
}

// deref returns the value form so callers can type-switch on concrete
// structs rather than pointers.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *Join:
		return *m
	case *Joined:
		return *m
	case *Leave:
		return *m
	case *Offer:
		return *m
	case *Answer:
		return *m
	case *Ice:
		return *m
	case *PeerJoined:
		return *m
	case *PeerLeft:
		return *m
	case *GuestLeft:
		return *m
	case *StartCapture:
		return *m
	case *CountdownTick:
		return *m
	case *CaptureNow:
		return *m
	case *PhotoUploaded:
		return *m
	case *PhotosMerged:
		return *m
	case *SessionComplete:
		return *m
	case *HostSettingsSync:
		return *m
	case *HostSettings:
		return *m
	case *Error:
		return *m
	case *Ping:
		return *m
	case *Pong:
		return *m
	default:
		return msg
	}
}

// DefaultHostSettings are the settings a room starts with when the host
// creates it.
func DefaultHostSettings() HostSettings {
	return HostSettings{
		ChromaKeyEnabled:    false,
		ChromaKeyColor:      "#00ff00",
		ChromaKeySimilarity: 0.4,
		ChromaKeySmoothness: 0.08,
		FrameLayoutId:       "classic-strip",
		RecordingDurationMs: 3000,
		CaptureIntervalMs:   1000,
	}
}
