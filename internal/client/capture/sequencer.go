// Package capture drives one photo cycle on a client: countdown display,
// the single capture-and-upload action, and the return to idle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/snapbooth/server/internal/protocol"
)

type State string

const (
	StateIdle      State = "idle"
	StateCounting  State = "counting"
	StateCapturing State = "capturing"
	StateUploaded  State = "uploaded"
)

var ErrSourceNotReady = errors.New("capture: media source not ready")

// Source produces one high-resolution frame from the locally owned media
// stream, base64-encoded. Hosts return a chroma-keyed frame with alpha,
// guests a plain frame.
type Source interface {
	CaptureFrame() (string, error)
}

type iUploader interface {
	Upload(ctx context.Context, base64Image, role string) (string, error)
}

type iSender interface {
	Send(msg protocol.Message) error
}

// Sequencer turns server-issued countdown-tick / capture-now /
// session-complete events into exactly one capture-and-upload per cycle.
type Sequencer struct {
	role     string
	source   Source
	uploader iUploader
	sender   iSender
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	sessionId string
	cancel    context.CancelFunc
}

func NewSequencer(role string, source Source, uploader iUploader, sender iSender, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		role:     role,
		source:   source,
		uploader: uploader,
		sender:   sender,
		logger:   logger,
		state:    StateIdle,
	}
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartCapture is the host-only entry point. The transition to counting is
// optimistic; the authoritative transition is still server-driven via the
// next countdown tick.
func (s *Sequencer) StartCapture() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.logger.Warn("start capture ignored, cycle in progress", "state", string(s.state))
		return nil
	}
	s.state = StateCounting
	s.mu.Unlock()

	if err := s.sender.Send(protocol.StartCapture{}); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("capture: send start: %w", err)
	}

	return nil
}

// HandleServerError rolls back an optimistic start the server rejected.
// Once a countdown tick has bound the cycle to a session the error reply
// belongs to something else and is ignored.
func (s *Sequencer) HandleServerError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCounting && s.sessionId == "" {
		s.state = StateIdle
		s.logger.Debug("capture start rejected, back to idle")
	}
}

// HandleCountdownTick records the active session. Ticks are display
// driven; they never trigger a capture themselves.
func (s *Sequencer) HandleCountdownTick(tick protocol.CountdownTick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionId = tick.SessionId
	s.state = StateCounting
	s.logger.Debug("countdown tick", "value", tick.Value, "session_id", tick.SessionId)
}

// HandleCaptureNow performs the one-shot capture and upload for the cycle.
// A duplicate capture-now for the same session is ignored. Source failures
// abort the cycle and are reported upward, never retried here.
func (s *Sequencer) HandleCaptureNow(msg protocol.CaptureNow) error {
	s.mu.Lock()
	if s.sessionId == msg.SessionId && (s.state == StateCapturing || s.state == StateUploaded) {
		s.mu.Unlock()
		s.logger.Debug("duplicate capture-now ignored", "session_id", msg.SessionId)
		return nil
	}

	s.sessionId = msg.SessionId
	s.state = StateCapturing

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	frame, err := s.source.CaptureFrame()
	if err != nil {
		s.reset()
		return fmt.Errorf("capture: %w", err)
	}

	url, err := s.uploader.Upload(ctx, frame, s.role)
	if err != nil {
		s.reset()
		return fmt.Errorf("capture: upload: %w", err)
	}

	s.mu.Lock()
	if s.state != StateCapturing || s.sessionId != msg.SessionId {
		// cancelled while uploading
		s.mu.Unlock()
		return nil
	}
	s.state = StateUploaded
	s.mu.Unlock()

	if err := s.sender.Send(protocol.PhotoUploaded{
		SessionId: msg.SessionId,
		PhotoUrl:  url,
	}); err != nil {
		return fmt.Errorf("capture: report upload: %w", err)
	}

	return nil
}

// HandleSessionComplete returns the cycle to idle.
func (s *Sequencer) HandleSessionComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.sessionId = ""
	s.cancel = nil
}

// Cancel aborts any in-flight upload and forces the cycle back to idle.
// Used when the room is torn down mid-cycle.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.state = StateIdle
	s.sessionId = ""
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Sequencer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
	s.sessionId = ""
}
