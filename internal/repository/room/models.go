package room

// Capture sub-states of a room.
const (
	CaptureStateIdle            = "idle"
	CaptureStateCountdown       = "countdown"
	CaptureStateAwaitingUploads = "awaiting_uploads"
	CaptureStateMerging         = "merging"
)

// Capture session statuses.
const (
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
)

type Room struct {
	HostId       string `redis:"host_id"`
	GuestId      string `redis:"guest_id"`
	Mode         string `redis:"mode"`
	CaptureState string `redis:"capture_state"`
	CreatedAt    int64  `redis:"created_at"`
	LastActivity int64  `redis:"last_activity"`
}

type Participant struct {
	RoomId string `redis:"room_id"`
	Role   string `redis:"role"`
}

type Settings struct {
	ChromaKeyEnabled    bool    `redis:"chroma_key_enabled"`
	ChromaKeyColor      string  `redis:"chroma_key_color"`
	ChromaKeySimilarity float64 `redis:"chroma_key_similarity"`
	ChromaKeySmoothness float64 `redis:"chroma_key_smoothness"`
	FrameLayoutId       string  `redis:"frame_layout_id"`
	RecordingDurationMs int     `redis:"recording_duration_ms"`
	CaptureIntervalMs   int     `redis:"capture_interval_ms"`
}

type CaptureSession struct {
	SessionId      string `redis:"session_id"`
	GuestId        string `redis:"guest_id"`
	HostPhotoUrl   string `redis:"host_photo_url"`
	GuestPhotoUrl  string `redis:"guest_photo_url"`
	MergedUrl      string `redis:"merged_url"`
	FrameResultUrl string `redis:"frame_result_url"`
	Status         string `redis:"status"`
}

type CompletedSession struct {
	SessionId      string `json:"session_id"`
	GuestId        string `json:"guest_id"`
	FrameResultUrl string `json:"frame_result_url"`
	CompletedAt    int64  `json:"completed_at"`
}
