package wsgateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/skybridge-io/mavfabric/internal/errs"
	"github.com/skybridge-io/mavfabric/internal/hub"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) (*Gateway, *hub.Hub, context.CancelFunc) {
	t.Helper()
	h := hub.New(discardLogger(), func(*mavlink.Frame) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	g := New(discardLogger(), h, nil, func() string { return "active" }, func() Snapshot {
		return Snapshot{FramesIn: 1}
	})
	return g, h, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestConnectSendsConnectionStatusFirst(t *testing.T) {
	g, _, cancel := newTestGateway(t)
	defer cancel()

	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	env := readEnvelope(t, conn)
	require.Equal(t, TypeConnectionStatus, env.Type)

	var payload ConnectionStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, "active", payload.AutopilotState)
}

func TestPingReceivesPong(t *testing.T) {
	g, _, cancel := newTestGateway(t)
	defer cancel()

	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	readEnvelope(t, conn) // connection_status

	req, _ := json.Marshal(Envelope{Type: TypePing})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

	env := readEnvelope(t, conn)
	require.Equal(t, TypePong, env.Type)
}

func TestRequestStatsReturnsSnapshot(t *testing.T) {
	g, _, cancel := newTestGateway(t)
	defer cancel()

	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	readEnvelope(t, conn) // connection_status

	req, _ := json.Marshal(Envelope{Type: TypeRequestStats})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

	env := readEnvelope(t, conn)
	require.Equal(t, TypeStatsUpdate, env.Type)

	var payload StatsUpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, int64(1), payload.Stats.FramesIn)
}

func TestMAVLinkCommandForwardedToHub(t *testing.T) {
	g, h, cancel := newTestGateway(t)
	defer cancel()

	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	readEnvelope(t, conn) // connection_status

	raw := mavlink.GCSHeartbeat(0)
	cmdPayload, _ := json.Marshal(MAVLinkCommandPayload{RawHex: hex.EncodeToString(raw)})
	req, _ := json.Marshal(Envelope{Type: TypeMAVLinkCommand, Payload: cmdPayload})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

	require.Eventually(t, func() bool {
		return h.Counters.CommandsOut.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMAVLinkCommandRejectedWhenLinkNotReady(t *testing.T) {
	h := hub.New(discardLogger(), func(*mavlink.Frame) error {
		return &errs.NotReadyError{State: "disconnected"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	g := New(discardLogger(), h, nil, func() string { return "disconnected" }, func() Snapshot { return Snapshot{} })

	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	readEnvelope(t, conn) // connection_status

	raw := mavlink.GCSHeartbeat(0)
	cmdPayload, _ := json.Marshal(MAVLinkCommandPayload{RawHex: hex.EncodeToString(raw)})
	req, _ := json.Marshal(Envelope{Type: TypeMAVLinkCommand, Payload: cmdPayload})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

	require.Eventually(t, func() bool {
		return h.Counters.CommandRejects.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(0), h.Counters.CommandsOut.Load())
}

func TestOriginRejectionIncrementsCounter(t *testing.T) {
	h := hub.New(discardLogger(), func(*mavlink.Frame) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	g := New(discardLogger(), h, []string{"https://allowed.example"}, func() string { return "active" }, func() Snapshot { return Snapshot{} })

	srv := httptest.NewServer(g)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := make(map[string][]string)
	header["Origin"] = []string{"https://evil.example"}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Equal(t, int64(1), g.Counters.OriginRejections.Load())
}
