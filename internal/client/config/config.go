package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the booth client configuration.
type Config struct {
	ServerURL     string
	UploadBaseURL string
	RoomCode      string
	Role          string
	IceServerURLs []string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	serverURL := os.Getenv("BOOTH_SERVER_URL")
	if serverURL == "" {
		return nil, fmt.Errorf("BOOTH_SERVER_URL environment variable is required")
	}

	roomCode := os.Getenv("BOOTH_ROOM_CODE")
	if roomCode == "" {
		return nil, fmt.Errorf("BOOTH_ROOM_CODE environment variable is required")
	}

	role := os.Getenv("BOOTH_ROLE")
	if role != "host" && role != "guest" {
		return nil, fmt.Errorf("BOOTH_ROLE must be host or guest")
	}

	uploadBaseURL := os.Getenv("BOOTH_UPLOAD_BASE_URL")
	if uploadBaseURL == "" {
		return nil, fmt.Errorf("BOOTH_UPLOAD_BASE_URL environment variable is required")
	}

	iceServers := []string{"stun:stun.l.google.com:19302"}
	if v := os.Getenv("BOOTH_ICE_SERVERS"); v != "" {
		iceServers = strings.Split(v, ",")
	}

	return &Config{
		ServerURL:     serverURL,
		UploadBaseURL: uploadBaseURL,
		RoomCode:      strings.ToUpper(roomCode),
		Role:          role,
		IceServerURLs: iceServers,
	}, nil
}
