package hub

import (
	"time"

	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

// mergeDelta applies a StateDelta onto state, touching only the field
// groups the delta marks present. A zero numeric value means "received
// zero"; a field group never touched by any delta stays at its
// zero-value "never received" state (§3 invariant).
func mergeDelta(state *VehicleState, d mavlink.StateDelta) {
	now := time.Now()

	if d.HasArmedMode {
		state.Armed = d.Armed
		state.FlightMode = d.FlightMode
		state.HasMode = true
		state.ModeAt = now
	}
	if d.HasBattery {
		state.BatteryVoltage = d.BatteryVoltage
		state.BatteryCurrent = d.BatteryCurrent
		state.BatteryRemain = d.BatteryRemain
		state.HasBattery = true
		state.BatteryAt = now
	}
	if d.HasGPS {
		state.Lat = d.Lat
		state.Lon = d.Lon
		state.AltitudeM = d.AltitudeM
		state.FixType = d.FixType
		state.Satellites = d.Satellites
		state.HasGPS = true
		state.GPSAt = now
	}
	if d.HasAttitude {
		state.RollDeg = d.RollDeg
		state.PitchDeg = d.PitchDeg
		state.YawDeg = d.YawDeg
		state.HasAttitude = true
		state.AttitudeAt = now
	}
	if d.HasSpeed {
		state.AirspeedMS = d.AirspeedMS
		state.GroundspdMS = d.GroundspdMS
		state.ClimbMS = d.ClimbMS
		state.ThrottlePct = d.ThrottlePct
		state.HasSpeed = true
		state.SpeedAt = now
		// VFR_HUD's altitude is a fallback source; only adopt it if GPS
		// has never reported one, so GPS never gets silently overwritten.
		if !state.HasGPS {
			state.AltitudeM = d.AltitudeM
		}
	}
}
