package wsgateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skybridge-io/mavfabric/internal/hub"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

const (
	pingInterval   = 30 * time.Second
	pingTimeout    = 10 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBufferCap  = 256
)

// StatsSource supplies the Snapshot a gateway session reports in
// connection_status and periodic stats_update envelopes.
type StatsSource func() Snapshot

// RejectCounter tracks origin rejections separately from ordinary
// session-close drops (§4.5 supplement).
type RejectCounter struct {
	OriginRejections atomic.Int64
}

// Gateway serves the WebSocket Gateway's single path ("/") and bridges
// accepted sessions to the Hub.
type Gateway struct {
	log            *slog.Logger
	h              *hub.Hub
	autopilotState func() string
	stats          StatsSource
	upgrader       websocket.Upgrader
	Counters       RejectCounter

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// New builds a Gateway. autopilotState and stats are polled on demand
// (connection_status, stats_update); they must be cheap and non-blocking.
func New(log *slog.Logger, h *hub.Hub, allowedOrigins []string, autopilotState func() string, stats StatsSource) *Gateway {
	g := &Gateway{log: log, h: h, autopilotState: autopilotState, stats: stats, clients: make(map[*wsClient]struct{})}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return g
}

func (g *Gateway) addClient(c *wsClient) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) removeClient(c *wsClient) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
}

// BroadcastStats pushes a stats_update envelope to every connected client
// every 30s, independent of any client-initiated request_stats (§4.5).
func (g *Gateway) BroadcastStats(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := g.stats()
			g.mu.Lock()
			for c := range g.clients {
				c.sendEnvelope(TypeStatsUpdate, StatsUpdatePayload{Stats: snap})
			}
			g.mu.Unlock()
		}
	}
}

// ServeHTTP implements http.Handler for the gateway's WS path.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.upgrader.CheckOrigin(r) {
		g.Counters.OriginRejections.Add(1)
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}

	session := g.h.NewSession(hub.TransportWebSocket, r.RemoteAddr)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.h.Register(ctx, session)
	defer g.h.Unregister(context.Background(), session.ID)

	client := &wsClient{
		gw:      g,
		conn:    conn,
		session: session,
		send:    make(chan []byte, sendBufferCap),
	}

	g.addClient(client)
	defer g.removeClient(client)

	go client.writePump(ctx, cancel)
	client.sendConnectionStatus()
	client.readPump(ctx, cancel)
}

type wsClient struct {
	gw      *Gateway
	conn    *websocket.Conn
	session *hub.Session
	send    chan []byte
	drops   atomic.Int64
}

func (c *wsClient) sendConnectionStatus() {
	payload := ConnectionStatusPayload{
		AutopilotState: c.gw.autopilotState(),
		Stats:          c.gw.stats(),
	}
	c.sendEnvelope(TypeConnectionStatus, payload)
}

func (c *wsClient) sendEnvelope(typ string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.gw.log.Warn("failed to marshal envelope payload", "type", typ, "err", err)
		return
	}
	env, err := json.Marshal(Envelope{Type: typ, Payload: body})
	if err != nil {
		return
	}
	select {
	case c.send <- env:
	default:
		select {
		case <-c.send:
			c.drops.Add(1)
		default:
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// readPump reads client envelopes (mavlink_command, request_stats, ping)
// and also forwards Hub fan-out frames onto the outbound queue by
// running a dedicated drain goroutine alongside it.
func (c *wsClient) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
		return nil
	})

	go c.fanOutPump(ctx)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleClientMessage(ctx, msg)
	}
}

// fanOutPump drains the Hub session's outbound frame queue and
// serializes each as a mavlink_message envelope.
func (c *wsClient) fanOutPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.session.Outbound():
			payload := MAVLinkMessagePayload{
				MessageID: f.MessageID,
				MsgType:   mavlink.Name(f.MessageID),
				SystemID:  f.SystemID,
				RawHex:    hex.EncodeToString(f.Raw),
			}
			c.sendEnvelope(TypeMAVLinkMessage, payload)
		}
	}
}

func (c *wsClient) handleClientMessage(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.gw.log.Warn("failed to parse client envelope", "err", err)
		return
	}

	switch env.Type {
	case TypePing:
		c.sendEnvelope(TypePong, struct{}{})

	case TypeRequestStats:
		c.sendEnvelope(TypeStatsUpdate, StatsUpdatePayload{Stats: c.gw.stats()})

	case TypeMAVLinkCommand:
		var payload MAVLinkCommandPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.gw.log.Warn("failed to parse mavlink_command payload", "err", err)
			return
		}
		raw, err := hex.DecodeString(payload.RawHex)
		if err != nil {
			c.gw.log.Warn("invalid mavlink_command hex", "err", err)
			return
		}
		res := mavlink.Parse(raw)
		if res.Outcome != mavlink.OutcomeFrame {
			c.gw.log.Warn("mavlink_command did not parse to a frame")
			return
		}
		c.gw.h.SubmitCommand(ctx, c.session.ID, res.Frame)
	}
}

func (c *wsClient) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
		if d := c.drops.Load(); d > 0 {
			c.gw.log.Debug("websocket client closed", "remote", c.session.RemoteAddr, "outbound_drops", d)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
