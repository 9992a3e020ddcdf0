package tcpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTunnelProxyRelaysBothDirections(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer upstreamLn.Close()

	upstreamAddr := upstreamLn.Addr().(*net.TCPAddr)

	go func() {
		conn, err := upstreamLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		io.ReadFull(conn, buf)
		conn.Write([]byte("world"))
	}()

	proxy := NewTunnelProxy(discardLogger(), "127.0.0.1", upstreamAddr.Port, 16)

	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer proxyLn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go proxy.Serve(ctx, proxyLn)

	client, err := net.Dial("tcp", proxyLn.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 5)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(client, out)
	require.NoError(t, err)
	require.Equal(t, "world", string(out))
}

func TestMaxClientsRejectsBeyondBound(t *testing.T) {
	proxy := NewTunnelProxy(discardLogger(), "127.0.0.1", 1, 0) // maxClients normalizes to 16, so force via field
	proxy.maxClients = 0

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go proxy.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return proxy.Counters.Rejections.Load() > 0
	}, time.Second, 5*time.Millisecond)
}
