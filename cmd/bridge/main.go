// Command bridge runs the full ground-side fabric for one vehicle: the
// Autopilot Link, Fan-out Hub, attached-mode TCP Session Server,
// WebSocket Gateway, and Telemetry Store-and-Forward (§3-§6).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/skybridge-io/mavfabric/internal/autopilot"
	"github.com/skybridge-io/mavfabric/internal/config"
	"github.com/skybridge-io/mavfabric/internal/hub"
	"github.com/skybridge-io/mavfabric/internal/logging"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
	"github.com/skybridge-io/mavfabric/internal/metrics"
	"github.com/skybridge-io/mavfabric/internal/tcpserver"
	"github.com/skybridge-io/mavfabric/internal/telemetry"
	"github.com/skybridge-io/mavfabric/internal/wsgateway"
)

func main() {
	cmd := &cli.Command{
		Name:  "bridge",
		Usage: "Ground-side MAVLink telemetry/command fabric for one vehicle",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "serial-device", Usage: "Autopilot serial device path"},
			&cli.IntFlag{Name: "serial-baud", Usage: "Autopilot serial baud rate"},
			&cli.IntFlag{Name: "listen-port", Usage: "Attached-mode MAVLink TCP port"},
			&cli.StringFlag{Name: "upstream-host", Usage: "Unused in bridge mode; present for flag-surface parity"},
			&cli.IntFlag{Name: "upstream-port", Usage: "Unused in bridge mode; present for flag-surface parity"},
			&cli.IntFlag{Name: "ws-port", Usage: "WebSocket Gateway HTTP port"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "vehicle-registry", Usage: "Path to the vehicle registry YAML file"},
			&cli.StringFlag{Name: "ingest-base-url", Usage: "Central REST ingestion endpoint base URL"},
			&cli.StringFlag{Name: "ingest-api-key", Usage: "Bearer token for the central ingestion endpoint"},
			&cli.StringFlag{Name: "realtime-url", Usage: "Central realtime WebSocket side-channel URL"},
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

	registry, err := config.LoadVehicleRegistry(cfg.VehicleRegistryPath)
	if err != nil {
		return fmt.Errorf("load vehicle registry: %w", err)
	}
	identity := config.FallbackIdentity(&cfg.Autopilot)
	if len(registry.Vehicles) > 0 {
		identity = registry.Vehicles[0]
		log.Info("using vehicle identity from registry", "vehicle_id", identity.ID)
	} else {
		log.Warn("vehicle registry empty or missing, using fallback identity", "path", cfg.VehicleRegistryPath)
	}

	// h is assigned below; the closure only runs once link.Run starts
	// reading frames, by which point h is set.
	var h *hub.Hub
	link := autopilot.New(log, identity.SerialDevice, identity.Baud, nil, func(ctx context.Context, f *mavlink.Frame) {
		h.SubmitInbound(ctx, f)
	})
	h = hub.New(log, link.Submit)

	tcpSrv := tcpserver.NewAttached(log, h, cfg.TCP.MaxClients)
	store := telemetry.New(log, cfg.Telemetry, identity.ID)

	statsSource := func() wsgateway.Snapshot {
		ts := store.Stats()
		return wsgateway.Snapshot{
			FramesIn:         h.Counters.FramesIn.Load(),
			SessionsActive:   h.Counters.SessionCount.Load(),
			TotalDrops:       h.Counters.TotalDrops.Load(),
			ResyncCount:      link.ResyncCount(),
			TelemetryTotal:   ts.TotalRecords,
			TelemetryPending: ts.PendingSync,
			TelemetryFailed:  ts.FailedSync,
		}
	}
	gw := wsgateway.New(log, h, nil, func() string { return link.State().String() }, statsSource)
	mux := wsgateway.NewMux(log, gw, nil)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCP.ListenPort))
	if err != nil {
		return fmt.Errorf("listen on tcp port %d: %w", cfg.TCP.ListenPort, err)
	}
	wsListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.WS.Port))
	if err != nil {
		return fmt.Errorf("listen on ws port %d: %w", cfg.WS.Port, err)
	}

	go h.Run(ctx)
	go link.Run(ctx)
	go tcpSrv.Serve(ctx, ln)
	go tcpSrv.ReportStats(ctx, log)
	go store.Run(ctx, h.TelemetryEvents())
	go gw.BroadcastStats(ctx)
	go mirrorMetrics(ctx, h, link, store)

	httpSrv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	log.Info("bridge started",
		"vehicle_id", identity.ID,
		"serial_device", identity.SerialDevice,
		"tcp_port", cfg.TCP.ListenPort,
		"ws_port", cfg.WS.Port,
	)

	if err := httpSrv.Serve(wsListener); err != nil && ctx.Err() == nil {
		return fmt.Errorf("websocket gateway http server: %w", err)
	}
	return nil
}

// mirrorMetrics polls the Hub, Autopilot Link, and Telemetry Store's
// internal counters on a fixed interval and republishes them as
// Prometheus collectors for /metrics (§6). It owns no domain state of
// its own; it only translates between atomic counters/snapshots and
// the exposition format.
func mirrorMetrics(ctx context.Context, h *hub.Hub, link *autopilot.Link, store *telemetry.Store) {
	m := metrics.Get()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastFramesIn, lastCommandsOut, lastResync, lastDrops int64
	var lastBuffered, lastSynced, lastSyncErrors int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			framesIn := h.Counters.FramesIn.Load()
			m.FramesInTotal.Add(float64(framesIn - lastFramesIn))
			lastFramesIn = framesIn

			commandsOut := h.Counters.CommandsOut.Load()
			m.FramesOutTotal.Add(float64(commandsOut - lastCommandsOut))
			lastCommandsOut = commandsOut

			resync := link.ResyncCount()
			m.ResyncTotal.Add(float64(resync - lastResync))
			lastResync = resync

			drops := h.Counters.TotalDrops.Load()
			m.DropsTotal.WithLabelValues("all").Add(float64(drops - lastDrops))
			lastDrops = drops

			m.SessionsActive.WithLabelValues("all").Set(float64(h.Counters.SessionCount.Load()))

			for _, s := range []autopilot.State{autopilot.Disconnected, autopilot.Connecting, autopilot.WaitingHeartbeat, autopilot.Active, autopilot.Degraded, autopilot.Closed} {
				v := 0.0
				if link.State() == s {
					v = 1
				}
				m.AutopilotState.WithLabelValues(s.String()).Set(v)
			}

			ts := store.Stats()
			m.TelemetryBufferedTotal.Add(float64(ts.TotalRecords - lastBuffered))
			lastBuffered = ts.TotalRecords
			m.TelemetryPending.Set(float64(ts.PendingSync))
			m.TelemetryFailed.Set(float64(ts.FailedSync))

			synced := ts.TotalRecords - ts.PendingSync - ts.FailedSync
			m.TelemetrySyncedTotal.Add(float64(synced - lastSynced))
			lastSynced = synced

			m.TelemetrySyncErrors.Add(float64(ts.SyncFailures - lastSyncErrors))
			lastSyncErrors = ts.SyncFailures
		}
	}
}

func applyFlags(cfg *config.Config, c *cli.Command) {
	if v := c.String("serial-device"); v != "" {
		cfg.Autopilot.Device = v
	}
	if v := c.Int("serial-baud"); v != 0 {
		cfg.Autopilot.Baud = int(v)
	}
	if v := c.Int("listen-port"); v != 0 {
		cfg.TCP.ListenPort = int(v)
	}
	if v := c.Int("ws-port"); v != 0 {
		cfg.WS.Port = int(v)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("vehicle-registry"); v != "" {
		cfg.VehicleRegistryPath = v
	}
	if v := c.String("ingest-base-url"); v != "" {
		cfg.Telemetry.IngestBaseURL = v
	}
	if v := c.String("ingest-api-key"); v != "" {
		cfg.Telemetry.IngestAPIKey = v
	}
	if v := c.String("realtime-url"); v != "" {
		cfg.Telemetry.RealtimeURL = v
	}
}
