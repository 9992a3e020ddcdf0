package tcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	tunnelUpstreamConnectTimeout = 10 * time.Second
	tunnelCopyBufSize            = 4096
)

// TunnelProxyCounters tracks per-direction byte counts plus the
// connection/error/clean-close counters §4.4 and §8 scenario 5 call for.
type TunnelProxyCounters struct {
	ConnectionsTotal  atomic.Int64
	ConnectionsActive atomic.Int64
	Rejections        atomic.Int64
	Errors            atomic.Int64
	CleanCloses       atomic.Int64
	BytesToUpstream   atomic.Int64
	BytesToClient     atomic.Int64
}

// TunnelProxy exposes a local TCP port and relays raw bytes to/from a
// fixed upstream (host, port) per client, preserving MAVLink frame
// boundaries by doing no parsing at all (§4.4 Tunnel Proxy mode).
type TunnelProxy struct {
	log          *slog.Logger
	upstreamHost string
	upstreamPort int
	maxClients   int
	Counters     TunnelProxyCounters
}

// NewTunnelProxy builds a proxy relaying to host:port.
func NewTunnelProxy(log *slog.Logger, host string, port, maxClients int) *TunnelProxy {
	if maxClients <= 0 {
		maxClients = 16
	}
	return &TunnelProxy{log: log, upstreamHost: host, upstreamPort: port, maxClients: maxClients}
}

// Serve accepts clients on ln until ctx is canceled.
func (p *TunnelProxy) Serve(ctx context.Context, ln net.Listener) error {
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
		if int(p.Counters.ConnectionsActive.Load()) >= p.maxClients {
			p.Counters.Rejections.Add(1)
			conn.Close()
			continue
		}
		p.Counters.ConnectionsTotal.Add(1)
		p.Counters.ConnectionsActive.Add(1)
		go p.handle(ctx, conn)
	}
}

func (p *TunnelProxy) handle(ctx context.Context, client net.Conn) {
	defer func() {
		client.Close()
		p.Counters.ConnectionsActive.Add(-1)
	}()

	dialCtx, cancel := context.WithTimeout(ctx, tunnelUpstreamConnectTimeout)
	defer cancel()

	var d net.Dialer
	upstream, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", p.upstreamHost, p.upstreamPort))
	if err != nil {
		p.log.Warn("tunnel proxy upstream dial failed", "err", err)
		p.Counters.Errors.Add(1)
		return
	}
	defer upstream.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.copyHalf(client, upstream, &p.Counters.BytesToUpstream, "client->upstream")
	}()
	go func() {
		defer wg.Done()
		p.copyHalf(upstream, client, &p.Counters.BytesToClient, "upstream->client")
	}()

	wg.Wait()
	p.Counters.CleanCloses.Add(1)
}

// copyHalf copies src to dst in tunnelCopyBufSize chunks, propagating
// half-close: when src returns EOF, it shuts down dst's write side (if
// dst supports CloseWrite) so the peer observes FIN without the whole
// connection being torn down, matching §4.4's half-close semantics.
func (p *TunnelProxy) copyHalf(dst io.Writer, src io.Reader, counter *atomic.Int64, label string) {
	buf := make([]byte, tunnelCopyBufSize)
	n, err := io.CopyBuffer(dst, src, buf)
	counter.Add(n)
	if err != nil {
		p.log.Debug("tunnel proxy copy ended", "direction", label, "err", err)
		p.Counters.Errors.Add(1)
	}
	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
}
