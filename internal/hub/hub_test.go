package hub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybridge-io/mavfabric/internal/errs"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

func heartbeat(armed bool) *mavlink.Frame {
	baseMode := byte(0)
	if armed {
		baseMode = 0x80
	}
	payload := make([]byte, 9)
	payload[6] = baseMode
	raw := mavlink.Serialize(mavlink.SerializeFields{
		Sequence: 0, SystemID: 1, ComponentID: 1, MessageID: mavlink.MsgHeartbeat, Payload: payload,
	})
	res := mavlink.Parse(raw)
	return res.Frame
}

func acceptAll(*mavlink.Frame) error { return nil }

func TestHeartbeatPassThroughSetsArmed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := New(discardLogger(), acceptAll)
	go h.Run(ctx)

	s := h.NewSession(TransportTCP, "127.0.0.1:1")
	h.Register(ctx, s)

	h.SubmitInbound(ctx, heartbeat(true))

	select {
	case f := <-s.Outbound():
		require.Equal(t, uint32(mavlink.MsgHeartbeat), f.MessageID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for fan-out")
	}

	state := h.Snapshot(ctx)
	require.True(t, state.Armed)
}

func TestSlowSessionDropsWithoutBlockingOthers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New(discardLogger(), acceptAll)
	go h.Run(ctx)

	slow := h.NewSession(TransportWebSocket, "slow")
	fast := h.NewSession(TransportTCP, "fast")
	h.Register(ctx, slow)
	h.Register(ctx, fast)

	const n = sessionQueueCap * 3
	for i := 0; i < n; i++ {
		h.SubmitInbound(ctx, heartbeat(i%2 == 0))
	}

	deadline := time.After(2 * time.Second)
	drained := 0
drainLoop:
	for {
		select {
		case <-fast.Outbound():
			drained++
		case <-deadline:
			break drainLoop
		default:
			if drained > 0 {
				break drainLoop
			}
		}
	}
	require.Greater(t, drained, 0)
	require.Greater(t, slow.counters.Drops.Load(), int64(0))
}

func TestCommandRejectedWhenSubmitterNotReady(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := New(discardLogger(), func(*mavlink.Frame) error {
		return &errs.NotReadyError{State: "disconnected"}
	})
	go h.Run(ctx)

	h.SubmitCommand(ctx, "session-1", &mavlink.Frame{})

	require.Eventually(t, func() bool {
		return h.Counters.CommandRejects.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(0), h.Counters.CommandsOut.Load())
}

func TestCommandForwardedToSubmitterNeverBlocksHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var accepted atomic.Int64
	h := New(discardLogger(), func(*mavlink.Frame) error {
		accepted.Add(1)
		return nil
	})
	go h.Run(ctx)

	h.SubmitCommand(ctx, "session-1", &mavlink.Frame{})

	require.Eventually(t, func() bool {
		return h.Counters.CommandsOut.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), accepted.Load())

	// the Hub loop must still be responsive to other events afterward.
	s := h.NewSession(TransportTCP, "127.0.0.1:2")
	h.Register(ctx, s)
	require.Eventually(t, func() bool {
		return h.Counters.SessionCount.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h := New(discardLogger(), acceptAll)
	go h.Run(ctx)

	h.Unregister(ctx, "never-registered")
	h.Unregister(ctx, "never-registered")
}
