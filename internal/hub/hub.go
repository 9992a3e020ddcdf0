// Package hub implements the Fan-out Hub (§4.3): the single serialization
// point between the Autopilot Link and every attached session and the
// Telemetry Store. All Hub state is mutated only inside the Run actor
// loop; everything else communicates with it over channels.
package hub

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// TelemetryEvent is what the Hub offers to the Telemetry Store subscriber
// for each inbound frame that produced a projection delta.
type TelemetryEvent struct {
	Delta mavlink.StateDelta
	Frame *mavlink.Frame
}

// Counters are the Hub's process-wide, read-only-published counters.
type Counters struct {
	FramesIn       atomic.Int64
	CommandsOut    atomic.Int64
	CommandRejects atomic.Int64
	ResyncCount    atomic.Int64
	SessionCount   atomic.Int64
	TotalDrops     atomic.Int64
}

// Submitter hands a command frame to the Autopilot Link. It must never
// block: only Active accepts the frame (§4.2); any other state, or a
// full outbound queue, returns a *errs.NotReadyError.
type Submitter func(f *mavlink.Frame) error

// Command is a frame submitted by a session, destined for the Autopilot
// Link's outbound queue.
type Command struct {
	SessionID string
	Frame     *mavlink.Frame
}

const (
	sessionQueueCap   = 256
	telemetryQueueCap = 256
	commandQueueCap   = 256
	inboundQueueCap   = 1024
)

// Hub is the central in-process broker (§4.3).
type Hub struct {
	log *slog.Logger

	inbound   chan *mavlink.Frame // from Autopilot Link read loop
	commands  chan Command        // from sessions, drained to Autopilot Link
	telemetry chan TelemetryEvent // to Telemetry Store, drop-oldest

	register   chan *Session
	unregister chan string // session id

	snapshotReq chan chan VehicleState

	Counters Counters

	// submit hands a drained command to the Autopilot Link. It is
	// expected to be non-blocking (internal/autopilot.Link.Submit is),
	// so the Hub's actor loop never stalls on autopilot backpressure.
	submit Submitter
}

// New builds a Hub. submit is the Autopilot Link's Submit method (or
// equivalent): the Hub calls it synchronously for every drained
// command and never blocks waiting on the Link's own state or queue.
func New(log *slog.Logger, submit Submitter) *Hub {
	return &Hub{
		log:         log,
		inbound:     make(chan *mavlink.Frame, inboundQueueCap),
		commands:    make(chan Command, commandQueueCap),
		telemetry:   make(chan TelemetryEvent, telemetryQueueCap),
		register:    make(chan *Session),
		unregister:  make(chan string),
		snapshotReq: make(chan chan VehicleState),
		submit:      submit,
	}
}

// SubmitInbound is called by the Autopilot Link's read loop for every
// parsed Frame. It blocks if the Hub's inbound queue is full: the Hub
// actor is expected to keep up, unlike the per-session fan-out queues.
func (h *Hub) SubmitInbound(ctx context.Context, f *mavlink.Frame) {
	select {
	case h.inbound <- f:
	case <-ctx.Done():
	}
}

// SubmitCommand is called by a session's reader loop. Commands from a
// single session preserve submission order; across sessions order is
// unspecified (§4.3).
func (h *Hub) SubmitCommand(ctx context.Context, sessionID string, f *mavlink.Frame) {
	select {
	case h.commands <- Command{SessionID: sessionID, Frame: f}:
	case <-ctx.Done():
	}
}

// Register attaches a session to the fan-out set.
func (h *Hub) Register(ctx context.Context, s *Session) {
	select {
	case h.register <- s:
	case <-ctx.Done():
	}
}

// Unregister detaches a session. Idempotent: unregistering an unknown or
// already-removed id is a no-op, safe to call from the session's own
// closing goroutine.
func (h *Hub) Unregister(ctx context.Context, sessionID string) {
	select {
	case h.unregister <- sessionID:
	case <-ctx.Done():
	}
}

// Snapshot returns a read-only copy of the current VehicleState.
func (h *Hub) Snapshot(ctx context.Context) VehicleState {
	reply := make(chan VehicleState, 1)
	select {
	case h.snapshotReq <- reply:
	case <-ctx.Done():
		return VehicleState{}
	}
	select {
	case v := <-reply:
		return v
	case <-ctx.Done():
		return VehicleState{}
	}
}

// TelemetryEvents exposes the drop-oldest telemetry queue for the
// Telemetry Store subscriber to drain.
func (h *Hub) TelemetryEvents() <-chan TelemetryEvent { return h.telemetry }

// NewSession is a convenience constructor using the Hub's configured
// per-session queue capacity.
func (h *Hub) NewSession(transport Transport, remoteAddr string) *Session {
	return NewSession(transport, remoteAddr, sessionQueueCap)
}

// Run is the Hub's single logical actor. It owns VehicleState and the
// session set exclusively; nothing outside this loop ever mutates them.
func (h *Hub) Run(ctx context.Context) {
	state := newVehicleState()
	sessions := make(map[string]*Session)

	for {
		select {
		case <-ctx.Done():
			return

		case f := <-h.inbound:
			h.Counters.FramesIn.Add(1)
			applyFrame(&state, f)
			h.fanOut(sessions, f)
			h.offerTelemetry(f)

		case cmd := <-h.commands:
			if s, ok := sessions[cmd.SessionID]; ok {
				s.touch()
			}
			if err := h.submit(cmd.Frame); err != nil {
				h.Counters.CommandRejects.Add(1)
				h.log.Warn("command rejected", "session", cmd.SessionID, "err", err)
				continue
			}
			h.Counters.CommandsOut.Add(1)

		case s := <-h.register:
			sessions[s.ID] = s
			h.Counters.SessionCount.Store(int64(len(sessions)))

		case id := <-h.unregister:
			delete(sessions, id)
			h.Counters.SessionCount.Store(int64(len(sessions)))

		case reply := <-h.snapshotReq:
			reply <- state
		}
	}
}

func applyFrame(state *VehicleState, f *mavlink.Frame) {
	delta, ok := mavlink.Decode(f)
	if !ok {
		return
	}
	state.SystemID = f.SystemID
	state.ComponentID = f.ComponentID
	mergeDelta(state, delta)
}

func (h *Hub) fanOut(sessions map[string]*Session, f *mavlink.Frame) {
	for _, s := range sessions {
		before := s.counters.Drops.Load()
		s.counters.FramesIn.Add(1)
		s.enqueue(f)
		if s.counters.Drops.Load() > before {
			h.Counters.TotalDrops.Add(1)
		}
	}
}

func (h *Hub) offerTelemetry(f *mavlink.Frame) {
	delta, ok := mavlink.Decode(f)
	if !ok {
		return
	}
	ev := TelemetryEvent{Delta: delta, Frame: f}
	select {
	case h.telemetry <- ev:
		return
	default:
	}
	// drop-oldest: make room then retry once.
	select {
	case <-h.telemetry:
		h.Counters.TotalDrops.Add(1)
	default:
	}
	select {
	case h.telemetry <- ev:
	default:
	}
}
