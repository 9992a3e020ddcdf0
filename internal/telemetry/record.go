// Package telemetry implements the Telemetry Store-and-Forward (§4.6): a
// durable hop between the Hub's telemetry projection and a remote
// ingestion endpoint, tolerant of minutes-to-hours of outage.
package telemetry

import (
	"github.com/google/uuid"

	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// Record is a single sanitized telemetry sample awaiting or having
// completed upload. CaptureTime never changes once set; Nonce plus
// VehicleID and CaptureTime form the idempotency key the ingestion
// endpoint is expected to dedupe on.
type Record struct {
	VehicleID   string                 `json:"vehicle_id"`
	CaptureTime float64                `json:"capture_time"`
	Nonce       string                 `json:"nonce"`
	Data        map[string]any         `json:"data"`
	Synced      bool                   `json:"synced"`
	RetryCount  int                    `json:"retry_count"`
}

// fromDelta builds a sanitized Record from a Hub telemetry projection
// delta. Only fields the delta actually touched are present in Data;
// the safety-set null replacement (battery_level, altitude, speed -> 0)
// runs here, on intake, not downstream.
func fromDelta(vehicleID string, captureTime float64, d mavlink.StateDelta) Record {
	data := map[string]any{}

	if d.HasArmedMode {
		data["armed"] = d.Armed
		data["flight_mode"] = d.FlightMode
	}
	if d.HasBattery {
		data["battery_voltage"] = d.BatteryVoltage
		data["battery_current"] = d.BatteryCurrent
		data["battery_level"] = safetyZero(d.BatteryRemain)
	}
	if d.HasGPS {
		data["lat"] = d.Lat
		data["lon"] = d.Lon
		data["altitude"] = safetyZero(d.AltitudeM)
		data["fix_type"] = d.FixType
		data["satellites"] = d.Satellites
	}
	if d.HasAttitude {
		data["roll_deg"] = d.RollDeg
		data["pitch_deg"] = d.PitchDeg
		data["yaw_deg"] = d.YawDeg
	}
	if d.HasSpeed {
		data["airspeed"] = safetyZero(d.AirspeedMS)
		data["groundspeed"] = safetyZero(d.GroundspdMS)
		data["climb_rate"] = d.ClimbMS
		data["throttle_pct"] = d.ThrottlePct
		if _, ok := data["altitude"]; !ok {
			data["altitude"] = safetyZero(d.AltitudeM)
		}
	}

	return Record{
		VehicleID:   vehicleID,
		CaptureTime: captureTime,
		Nonce:       uuid.NewString(),
		Data:        data,
		Synced:      false,
		RetryCount:  0,
	}
}

// safetyZero replaces any negative value with 0 for the safety-set
// fields (§4.6 intake rule). The decoder reports an unavailable battery
// level as -1; altitude, airspeed and groundspeed carry no sentinel, so
// a negative reading of those is clamped to 0 as well.
func safetyZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Stats mirrors the original implementation's BufferStats shape so the
// persisted snapshot and the WebSocket Gateway's stats_update payload
// can both report it directly.
type Stats struct {
	TotalRecords  int64   `json:"total_records"`
	PendingSync   int64   `json:"pending_sync"`
	FailedSync    int64   `json:"failed_sync"`
	LastSyncTime  float64 `json:"last_sync_time"`
	SyncFailures  int64   `json:"sync_failures"`
}
