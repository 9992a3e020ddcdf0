package autopilot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// fakePort is an in-memory pseudo serial port: writes from the Link are
// captured, and test code feeds bytes for the Link to read via inbound.
type fakePort struct {
	mu      sync.Mutex
	inbound []byte
	written [][]byte
	closed  bool
}

func (f *fakePort) feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, b...)
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return 0, timeoutErr{}
	}
	n := copy(p, f.inbound)
	f.inbound = f.inbound[n:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte{}, p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func testHeartbeatBytes(armed bool) []byte {
	baseMode := byte(0)
	if armed {
		baseMode = 0x80
	}
	payload := make([]byte, 9)
	payload[6] = baseMode
	return mavlink.Serialize(mavlink.SerializeFields{
		Sequence: 1, SystemID: 42, ComponentID: 1, MessageID: mavlink.MsgHeartbeat, Payload: payload,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandshakeObservesSystemID(t *testing.T) {
	port := &fakePort{}
	port.feed(testHeartbeatBytes(true))

	var frames []*mavlink.Frame
	var mu sync.Mutex
	sink := func(_ context.Context, f *mavlink.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}

	opened := false
	open := func(device string, baud int) (Port, error) {
		opened = true
		return port, nil
	}

	link := New(discardLogger(), "/dev/fake0", 921600, open, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go link.Run(ctx)

	require.Eventually(t, func() bool {
		sid, _ := link.Identity()
		return sid == 42
	}, time.Second, 5*time.Millisecond)
	require.True(t, opened)
	require.Equal(t, Active, link.State())
}

func TestSubmitRejectedWhenNotActive(t *testing.T) {
	link := New(discardLogger(), "/dev/fake0", 921600, func(string, int) (Port, error) {
		return nil, io.ErrClosedPipe
	}, func(context.Context, *mavlink.Frame) {})

	err := link.Submit(&mavlink.Frame{})
	require.Error(t, err)
}
