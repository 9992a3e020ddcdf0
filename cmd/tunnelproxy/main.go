// Command tunnelproxy relays raw MAVLink bytes between a single fixed
// upstream endpoint and any number of TCP clients, performing no
// protocol parsing of its own (§4.4 tunnel-proxy mode).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/skybridge-io/mavfabric/internal/config"
	"github.com/skybridge-io/mavfabric/internal/logging"
	"github.com/skybridge-io/mavfabric/internal/tcpserver"
)

func main() {
	cmd := &cli.Command{
		Name:  "tunnelproxy",
		Usage: "Relay raw MAVLink TCP bytes to a fixed upstream endpoint",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "listen-port", Usage: "Tunnel-proxy listen port"},
			&cli.StringFlag{Name: "upstream-host", Usage: "Upstream MAVLink TCP host"},
			&cli.IntFlag{Name: "upstream-port", Usage: "Upstream MAVLink TCP port"},
			&cli.IntFlag{Name: "ws-port", Usage: "Unused in tunnel-proxy mode; present for flag-surface parity"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error"},
			&cli.IntFlag{Name: "max-clients", Usage: "Maximum concurrent relayed connections"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if ctx.Err() != nil {
		os.Exit(130)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	cfg := config.Load()
	applyFlags(cfg, c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(cfg.Logging.Level)

	proxy := tcpserver.NewTunnelProxy(log, cfg.TCP.UpstreamHost, cfg.TCP.UpstreamPort, cfg.TCP.MaxClients)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCP.TunnelPort))
	if err != nil {
		return fmt.Errorf("listen on tunnel port %d: %w", cfg.TCP.TunnelPort, err)
	}

	go proxy.ReportStats(ctx)

	log.Info("tunnel proxy started",
		"listen_port", cfg.TCP.TunnelPort,
		"upstream_host", cfg.TCP.UpstreamHost,
		"upstream_port", cfg.TCP.UpstreamPort,
	)

	return proxy.Serve(ctx, ln)
}

func applyFlags(cfg *config.Config, c *cli.Command) {
	if v := c.Int("listen-port"); v != 0 {
		cfg.TCP.TunnelPort = int(v)
	}
	if v := c.String("upstream-host"); v != "" {
		cfg.TCP.UpstreamHost = v
	}
	if v := c.Int("upstream-port"); v != 0 {
		cfg.TCP.UpstreamPort = int(v)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.Int("max-clients"); v != 0 {
		cfg.TCP.MaxClients = int(v)
	}
}
