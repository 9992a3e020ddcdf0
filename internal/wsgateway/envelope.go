// Package wsgateway implements the WebSocket Gateway (§4.5): a JSON
// envelope protocol for browser clients, bridged to the Hub.
package wsgateway

import "encoding/json"

// Envelope is the shape of every client<->server message; Type dispatches
// handling, Payload carries the type-specific body.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client->server envelope types.
const (
	TypeMAVLinkCommand = "mavlink_command"
	TypeRequestStats   = "request_stats"
	TypePing           = "ping"
)

// Server->client envelope types.
const (
	TypeConnectionStatus = "connection_status"
	TypeMAVLinkMessage   = "mavlink_message"
	TypeStatsUpdate      = "stats_update"
	TypePong             = "pong"
)

// ConnectionStatusPayload is sent once on accept (§4.5).
type ConnectionStatusPayload struct {
	AutopilotState string  `json:"autopilot_state"`
	Stats          Snapshot `json:"stats"`
}

// MAVLinkMessagePayload summarizes a parsed Frame with raw bytes
// hex-encoded, per §4.5.
type MAVLinkMessagePayload struct {
	MessageID uint32 `json:"msg_id"`
	MsgType   string `json:"msg_type"`
	SystemID  byte   `json:"system_id"`
	RawHex    string `json:"raw_hex"`
}

// StatsUpdatePayload is broadcast every 30s (§4.5).
type StatsUpdatePayload struct {
	Stats Snapshot `json:"stats"`
}

// Snapshot is the BufferStats + Hub counters shape sent in
// connection_status and stats_update payloads.
type Snapshot struct {
	FramesIn      int64 `json:"frames_in"`
	SessionsActive int64 `json:"sessions_active"`
	TotalDrops    int64 `json:"total_drops"`
	ResyncCount   int64 `json:"resync_count"`

	TelemetryTotal   int64 `json:"telemetry_total"`
	TelemetryPending int64 `json:"telemetry_pending"`
	TelemetryFailed  int64 `json:"telemetry_failed"`
}

// MAVLinkCommandPayload is the opaque client-submitted command descriptor,
// forwarded as a frame (§4.5): raw bytes of a complete MAVLink packet,
// hex-encoded, that the gateway re-parses before handing to the Hub.
type MAVLinkCommandPayload struct {
	RawHex string `json:"raw_hex"`
}
