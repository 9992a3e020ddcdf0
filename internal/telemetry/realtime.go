package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skybridge-io/mavfabric/internal/backoff"
)

const (
	realtimeHandshakeTimeout = 30 * time.Second
	realtimePingTimeout      = 10 * time.Second
)

// realtimeMessage is the envelope shape the central server's realtime
// channel speaks (supplemented from central_server_sync.py): topic +
// event + payload.
type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type systemPingPayload struct {
	Type string `json:"type"`
}

// realtimeClient is the fire-and-forget central WebSocket side-channel
// (§4.6). Its failures never block intake or the REST sync loop: callers
// get a best-effort Send that silently drops when disconnected.
type realtimeClient struct {
	log    *slog.Logger
	url    string
	apiKey string

	send chan []byte
}

func newRealtimeClient(log *slog.Logger, url, apiKey string) *realtimeClient {
	return &realtimeClient{log: log, url: url, apiKey: apiKey, send: make(chan []byte, 256)}
}

// Run maintains the side-channel connection, reconnecting with the
// fabric's standard backoff policy, independent of the Autopilot Link's
// own reconnector (§4.6, §9).
func (c *realtimeClient) Run(ctx context.Context) {
	if c.url == "" {
		return
	}
	bo := backoff.Default()
	for ctx.Err() == nil {
		if err := c.runOnce(ctx); err != nil {
			c.log.Warn("central realtime channel disconnected", "err", err)
		} else {
			bo.Reset()
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.Next()):
		}
	}
}

func (c *realtimeClient) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, realtimeHandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("apikey", c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	join, _ := json.Marshal(realtimeMessage{Topic: "realtime:drones", Event: "phx_join", Payload: []byte("{}")})
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if ctx.Err() != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(realtimeHandshakeTimeout + realtimePingTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.handleInbound(conn, msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(realtimeHandshakeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		}
	}
}

// handleInbound answers system.ping with system.pong immediately,
// independent of record flow, per §4.6's supplemented handshake.
func (c *realtimeClient) handleInbound(conn *websocket.Conn, raw []byte) {
	var msg realtimeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Event != "system" {
		return
	}
	var sys systemPingPayload
	if err := json.Unmarshal(msg.Payload, &sys); err != nil {
		return
	}
	if sys.Type != "ping" {
		return
	}
	pong, _ := json.Marshal(realtimeMessage{
		Topic:   "realtime:system",
		Event:   "pong",
		Payload: []byte(`{"timestamp":` + strconv.FormatInt(time.Now().Unix(), 10) + `}`),
	})
	conn.SetWriteDeadline(time.Now().Add(realtimeHandshakeTimeout))
	conn.WriteMessage(websocket.TextMessage, pong)
}

// sendRecord fire-and-forgets a newly-ingested record as a realtime
// event; a full send buffer silently drops the event rather than
// blocking the sync loop.
func (c *realtimeClient) sendRecord(r Record) {
	body, err := json.Marshal(r)
	if err != nil {
		return
	}
	msg, err := json.Marshal(realtimeMessage{Topic: "realtime:drones", Event: "telemetry", Payload: body})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
