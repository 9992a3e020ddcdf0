package hub

import "time"

// VehicleState is the Hub's accumulated projection of selected inbound
// frames (§3). It is exclusively owned by the Hub actor; everything
// outside the actor only ever sees a copy returned by Snapshot.
type VehicleState struct {
	SystemID    byte
	ComponentID byte

	FlightMode string // "UNKNOWN" until a HEARTBEAT with a known custom_mode arrives
	Armed      bool
	HasMode    bool
	ModeAt     time.Time

	BatteryVoltage float64
	BatteryCurrent float64
	BatteryRemain  float64
	HasBattery     bool
	BatteryAt      time.Time

	Lat        float64
	Lon        float64
	AltitudeM  float64
	FixType    int
	Satellites int
	HasGPS     bool
	GPSAt      time.Time

	RollDeg  float64
	PitchDeg float64
	YawDeg   float64
	HasAttitude bool
	AttitudeAt  time.Time

	AirspeedMS  float64
	GroundspdMS float64
	ClimbMS     float64
	ThrottlePct float64
	HasSpeed    bool
	SpeedAt     time.Time
}

// newVehicleState returns a state with FlightMode "UNKNOWN" until a
// HEARTBEAT arrives, matching the spec's "unknown means never received"
// invariant.
func newVehicleState() VehicleState {
	return VehicleState{FlightMode: "UNKNOWN"}
}
