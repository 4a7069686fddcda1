package capture

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/snapbooth/server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	frame string
	err   error
	calls int
}

func (m *mockSource) CaptureFrame() (string, error) {
	m.calls++
	return m.frame, m.err
}

type mockUploader struct {
	url     string
	err     error
	calls   int
	blockOn chan struct{}
	gotCtx  context.Context
}

func (m *mockUploader) Upload(ctx context.Context, base64Image, role string) (string, error) {
	m.calls++
	m.gotCtx = ctx
	if m.blockOn != nil {
		select {
		case <-m.blockOn:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.url, m.err
}

type mockSender struct {
	sent []protocol.Message
	err  error
}

func (m *mockSender) Send(msg protocol.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func newSequencer(source *mockSource, uploader *mockUploader, sender *mockSender) *Sequencer {
	return NewSequencer("host", source, uploader, sender, slog.Default())
}

func TestFullCycle(t *testing.T) {
	source := &mockSource{frame: "base64-frame"}
	uploader := &mockUploader{url: "https://cdn/host.png"}
	sender := &mockSender{}
	s := newSequencer(source, uploader, sender)

	require.NoError(t, s.StartCapture())
	assert.Equal(t, StateCounting, s.State())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, protocol.TypeStartCapture, sender.sent[0].MessageType())

	s.HandleCountdownTick(protocol.CountdownTick{SessionId: "s-1", Value: 3})
	assert.Equal(t, StateCounting, s.State())

	require.NoError(t, s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"}))
	assert.Equal(t, StateUploaded, s.State())
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, uploader.calls)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, protocol.PhotoUploaded{
		SessionId: "s-1",
		PhotoUrl:  "https://cdn/host.png",
	}, sender.sent[1])

	s.HandleSessionComplete()
	assert.Equal(t, StateIdle, s.State())
}

func TestStartCaptureWhileBusyIsNoOp(t *testing.T) {
	sender := &mockSender{}
	s := newSequencer(&mockSource{}, &mockUploader{}, sender)

	require.NoError(t, s.StartCapture())
	require.NoError(t, s.StartCapture())

	assert.Len(t, sender.sent, 1)
}

func TestRejectedStartReturnsToIdle(t *testing.T) {
	sender := &mockSender{}
	s := newSequencer(&mockSource{}, &mockUploader{}, sender)

	// host triggers with no guest present; the server answers with an
	// error reply instead of the first countdown tick
	require.NoError(t, s.StartCapture())
	assert.Equal(t, StateCounting, s.State())

	s.HandleServerError()
	assert.Equal(t, StateIdle, s.State())

	// the rejection must not wedge later cycles
	require.NoError(t, s.StartCapture())
	assert.Len(t, sender.sent, 2)
}

func TestServerErrorAfterTickIsIgnored(t *testing.T) {
	sender := &mockSender{}
	s := newSequencer(&mockSource{}, &mockUploader{}, sender)

	require.NoError(t, s.StartCapture())
	s.HandleCountdownTick(protocol.CountdownTick{SessionId: "s-1", Value: 3})

	// an unrelated error reply mid-countdown leaves the bound cycle alone
	s.HandleServerError()
	assert.Equal(t, StateCounting, s.State())
}

func TestDuplicateCaptureNowIgnored(t *testing.T) {
	source := &mockSource{frame: "f"}
	uploader := &mockUploader{url: "https://cdn/p.png"}
	sender := &mockSender{}
	s := newSequencer(source, uploader, sender)

	require.NoError(t, s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"}))
	require.NoError(t, s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"}))

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, uploader.calls)
}

func TestSourceFailureAbortsCycle(t *testing.T) {
	source := &mockSource{err: ErrSourceNotReady}
	uploader := &mockUploader{}
	sender := &mockSender{}
	s := newSequencer(source, uploader, sender)

	err := s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"})
	require.ErrorIs(t, err, ErrSourceNotReady)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, uploader.calls)
	assert.Empty(t, sender.sent)

	// the failed cycle is not latched; the same session may be retried by
	// the user re-triggering
	source.err = nil
	source.frame = "f"
	uploader.url = "https://cdn/p.png"
	require.NoError(t, s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"}))
	assert.Equal(t, StateUploaded, s.State())
}

func TestUploadFailureAbortsCycle(t *testing.T) {
	source := &mockSource{frame: "f"}
	uploader := &mockUploader{err: errors.New("sink down")}
	sender := &mockSender{}
	s := newSequencer(source, uploader, sender)

	err := s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"})
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, sender.sent)
}

func TestCancelAbortsInFlightUpload(t *testing.T) {
	source := &mockSource{frame: "f"}
	uploader := &mockUploader{url: "https://cdn/p.png", blockOn: make(chan struct{})}
	sender := &mockSender{}
	s := newSequencer(source, uploader, sender)

	done := make(chan error, 1)
	go func() {
		done <- s.HandleCaptureNow(protocol.CaptureNow{SessionId: "s-1"})
	}()

	// wait for the upload to be in flight, then cancel
	require.Eventually(t, func() bool {
		return s.State() == StateCapturing
	}, 2*time.Second, 10*time.Millisecond)
	s.Cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, uploader.gotCtx.Err(), context.Canceled)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, sender.sent)
}
