// Package tcpserver implements the TCP Session Server (§4.4): attached
// mode integrates MAVLink-over-TCP clients with the Hub; tunnel-proxy
// mode relays raw bytes to a fixed upstream endpoint.
package tcpserver

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/skybridge-io/mavfabric/internal/hub"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// Counters are the server's process-wide stats (§4.4 "Stats").
type Counters struct {
	ConnectionsTotal  atomic.Int64
	ConnectionsActive atomic.Int64
	Rejections        atomic.Int64
	Errors            atomic.Int64
}

// AttachedServer accepts MAVLink-over-TCP clients and represents each as
// a Hub session (default mode, §4.4).
type AttachedServer struct {
	log        *slog.Logger
	h          *hub.Hub
	maxClients int
	Counters   Counters
}

// NewAttached builds an attached-mode TCP server bound to hub h.
func NewAttached(log *slog.Logger, h *hub.Hub, maxClients int) *AttachedServer {
	if maxClients <= 0 {
		maxClients = 16
	}
	return &AttachedServer{log: log, h: h, maxClients: maxClients}
}

// Serve accepts on ln until ctx is canceled.
func (s *AttachedServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if int(s.Counters.ConnectionsActive.Load()) >= s.maxClients {
			s.Counters.Rejections.Add(1)
			conn.Close()
			continue
		}
		s.Counters.ConnectionsTotal.Add(1)
		s.Counters.ConnectionsActive.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *AttachedServer) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.Counters.ConnectionsActive.Add(-1)
	}()

	session := s.h.NewSession(hub.TransportTCP, conn.RemoteAddr().String())
	s.h.Register(ctx, session)
	defer s.h.Unregister(ctx, session.ID)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		s.writeLoop(sessCtx, conn, session)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		s.readLoop(sessCtx, conn, session)
	}()

	<-done
	cancel()
	<-done
}

func (s *AttachedServer) readLoop(ctx context.Context, conn net.Conn, session *hub.Session) {
	buf := make([]byte, 0, 4096)
	read := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			for {
				res := mavlink.Parse(buf)
				switch res.Outcome {
				case mavlink.OutcomeFrame:
					buf = buf[res.Consumed:]
					s.h.SubmitCommand(ctx, session.ID, res.Frame)
				case mavlink.OutcomeResync:
					buf = buf[res.Consumed:]
				default:
					goto nextRead
				}
			}
		}
		if err != nil {
			s.Counters.Errors.Add(1)
			return
		}
	nextRead:
	}
}

func (s *AttachedServer) writeLoop(ctx context.Context, conn net.Conn, session *hub.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-session.Outbound():
			if _, err := conn.Write(f.Raw); err != nil {
				s.Counters.Errors.Add(1)
				return
			}
		}
	}
}
