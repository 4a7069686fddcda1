package room

import "github.com/snapbooth/server/internal/repository/room"

// Capture sub-states as surfaced in RoomState.
const (
	CaptureStateIdle            = room.CaptureStateIdle
	CaptureStateCountdown       = room.CaptureStateCountdown
	CaptureStateAwaitingUploads = room.CaptureStateAwaitingUploads
	CaptureStateMerging         = room.CaptureStateMerging
)

// Settings is the host-owned configuration as exposed on the wire. The
// authoritative copy lives in the repository; the guest only ever receives
// this read-only snapshot.
type Settings struct {
	ChromaKeyEnabled    bool    `json:"chroma_key_enabled"`
	ChromaKeyColor      string  `json:"chroma_key_color"`
	ChromaKeySimilarity float64 `json:"chroma_key_similarity"`
	ChromaKeySmoothness float64 `json:"chroma_key_smoothness"`
	FrameLayoutId       string  `json:"frame_layout_id"`
	RecordingDurationMs int     `json:"recording_duration_ms"`
	CaptureIntervalMs   int     `json:"capture_interval_ms"`
}

func settingsFromRepo(s room.Settings) Settings {
	return Settings{
		ChromaKeyEnabled:    s.ChromaKeyEnabled,
		ChromaKeyColor:      s.ChromaKeyColor,
		ChromaKeySimilarity: s.ChromaKeySimilarity,
		ChromaKeySmoothness: s.ChromaKeySmoothness,
		FrameLayoutId:       s.FrameLayoutId,
		RecordingDurationMs: s.RecordingDurationMs,
		CaptureIntervalMs:   s.CaptureIntervalMs,
	}
}

func (s Settings) toRepo() room.Settings {
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

// DefaultSettings are applied when the host creates a room.
func DefaultSettings() Settings {
	return Settings{
		ChromaKeyEnabled:    false,
		ChromaKeyColor:      "#00ff00",
		ChromaKeySimilarity: 0.4,
		ChromaKeySmoothness: 0.08,
		FrameLayoutId:       "classic-strip",
		RecordingDurationMs: 3000,
		CaptureIntervalMs:   1000,
	}
}

type CompletedSession struct {
	SessionId      string `json:"session_id"`
	GuestId        string `json:"guest_id"`
	FrameResultUrl string `json:"frame_result_url"`
	CompletedAt    int64  `json:"completed_at"`
}

// RoomState is a full snapshot of a room, used for diagnostics and tests.
type RoomState struct {
	HostId       string             `json:"host_id"`
	GuestId      string             `json:"guest_id,omitempty"`
	Mode         string             `json:"mode"`
	CaptureState string             `json:"capture_state"`
	Settings     Settings           `json:"settings"`
	History      []CompletedSession `json:"history"`
}
