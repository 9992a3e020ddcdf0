package config

import (
	"os"
	"strconv"
)

// Load overlays environment variables onto Default(). CLI flags are
// applied afterward by the binary's own flag-parsing (cmd/bridge,
// cmd/tunnelproxy), which take final precedence.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("BRIDGE_SERIAL_DEVICE"); v != "" {
		cfg.Autopilot.Device = v
	}
	if v := os.Getenv("BRIDGE_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Autopilot.Baud = n
		}
	}
	if v := os.Getenv("BRIDGE_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TCP.ListenPort = n
		}
	}
	if v := os.Getenv("BRIDGE_UPSTREAM_HOST"); v != "" {
		cfg.TCP.UpstreamHost = v
	}
	if v := os.Getenv("BRIDGE_UPSTREAM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TCP.UpstreamPort = n
		}
	}
	if v := os.Getenv("BRIDGE_WS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WS.Port = n
		}
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BRIDGE_INGEST_BASE_URL"); v != "" {
		cfg.Telemetry.IngestBaseURL = v
	}
	if v := os.Getenv("BRIDGE_INGEST_API_KEY"); v != "" {
		cfg.Telemetry.IngestAPIKey = v
	}

	return cfg
}
