// Package config holds the fabric's configuration tree: serial/autopilot
// settings, transport listener settings, telemetry store settings, and
// logging. Precedence is Default() overlaid by environment variables
// (Load) overlaid by CLI flags (applied by cmd/bridge and
// cmd/tunnelproxy themselves), matching the teacher's three-layer
// config idiom.
package config

import "fmt"

// Config is the root configuration for the bridge binary. The tunnel
// proxy binary uses only the TCP and Logging sub-trees.
type Config struct {
	Autopilot AutopilotConfig
	TCP       TCPConfig
	WS        WSConfig
	Telemetry TelemetryConfig
	Logging   LoggingConfig

	VehicleRegistryPath string
}

type AutopilotConfig struct {
	Device string
	Baud   int
}

type TCPConfig struct {
	ListenPort   int // attached-mode MAVLink port, default 14550
	TunnelPort   int // tunnel-proxy listen port, default 14551
	UpstreamHost string
	UpstreamPort int
	MaxClients   int
}

type WSConfig struct {
	Port int
}

type TelemetryConfig struct {
	BufferFile         string
	MaxMemoryRecords   int
	FailedBufferCap    int
	CheckpointInterval int // records between disk checkpoints
	SyncIntervalSec    int
	BatchSize          int
	MaxRetries         int
	IngestBaseURL      string
	IngestAPIKey       string
	RealtimeURL        string
}

type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// Default returns a Config with every default value named in the
// external interfaces contract.
func Default() *Config {
	return &Config{
		Autopilot: AutopilotConfig{
			Device: "/dev/ttyACM0",
			Baud:   921600,
		},
		TCP: TCPConfig{
			ListenPort:   14550,
			TunnelPort:   14551,
			UpstreamHost: "127.0.0.1",
			UpstreamPort: 14550,
			MaxClients:   16,
		},
		WS: WSConfig{
			Port: 8765,
		},
		Telemetry: TelemetryConfig{
			BufferFile:         "/tmp/telemetry_buffer.json",
			MaxMemoryRecords:   1000,
			FailedBufferCap:    100,
			CheckpointInterval: 100,
			SyncIntervalSec:    5,
			BatchSize:          50,
			MaxRetries:         3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		VehicleRegistryPath: "./vehicles.yaml",
	}
}

// Validate rejects configuration combinations that cannot start.
func (c *Config) Validate() error {
	if c.Autopilot.Device == "" {
		return fmt.Errorf("autopilot device must not be empty")
	}
	if c.Autopilot.Baud <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.Autopilot.Baud)
	}
	for name, port := range map[string]int{
		"tcp.listen_port": c.TCP.ListenPort,
		"tcp.tunnel_port": c.TCP.TunnelPort,
		"ws.port":         c.WS.Port,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port for %s: %d", name, port)
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}
