package hub

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// Transport identifies which server accepted a Session.
type Transport int

const (
	TransportTCP Transport = iota
	TransportWebSocket
	TransportTunnelProxy
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportWebSocket:
		return "websocket"
	case TransportTunnelProxy:
		return "tunnel-proxy"
	default:
		return "unknown"
	}
}

// SessionCounters are the typed, atomically-updated counters the spec's
// §9 design note replaces "shared mutable statistics dictionaries" with.
type SessionCounters struct {
	BytesIn   atomic.Int64
	BytesOut  atomic.Int64
	FramesIn  atomic.Int64
	FramesOut atomic.Int64
	Drops     atomic.Int64
}

// Session represents one remote client attached to the Hub (§3). The
// outbound queue is bounded and drop-oldest (§4.3); the Hub actor is the
// only writer, the session's own reader/writer goroutines are the only
// readers.
type Session struct {
	ID         string
	Transport  Transport
	RemoteAddr string

	outbound chan *mavlink.Frame
	counters SessionCounters

	lastActivity atomic.Int64 // unix nanos
}

// NewSession constructs a Session with a bounded outbound queue of the
// given capacity (drop-oldest is implemented by the Hub's enqueue path,
// not by the channel itself).
func NewSession(transport Transport, remoteAddr string, queueCap int) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		Transport:  transport,
		RemoteAddr: remoteAddr,
		outbound:   make(chan *mavlink.Frame, queueCap),
	}
	s.touch()
	return s
}

// Outbound returns the channel a session's writer goroutine should drain.
func (s *Session) Outbound() <-chan *mavlink.Frame { return s.outbound }

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last time this session produced or consumed a
// frame.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// enqueue pushes f onto the session's outbound queue, dropping the
// oldest queued frame if full (§4.3 fan-out policy step 3). Never blocks.
func (s *Session) enqueue(f *mavlink.Frame) {
	for {
		select {
		case s.outbound <- f:
			s.counters.FramesOut.Add(1)
			s.counters.BytesOut.Add(int64(len(f.Raw)))
			s.touch()
			return
		default:
			select {
			case <-s.outbound:
				s.counters.Drops.Add(1)
			default:
			}
		}
	}
}
