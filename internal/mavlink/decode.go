package mavlink

import "math"

// StateDelta is a partial update to a VehicleState-shaped projection,
// produced by decoding one Frame via the telemetry projection table.
// Only fields with a corresponding Has* flag set were touched by this
// frame; callers must never clear fields a delta does not mention.
type StateDelta struct {
	HasArmedMode bool
	Armed        bool
	FlightMode   string

	HasBattery      bool
	BatteryVoltage  float64
	BatteryCurrent  float64
	BatteryRemain   float64 // percent, -1 if unknown

	HasGPS     bool
	Lat        float64
	Lon        float64
	AltitudeM  float64
	FixType    int
	Satellites int

	HasAttitude bool
	RollDeg     float64
	PitchDeg    float64
	YawDeg      float64

	HasSpeed     bool
	AirspeedMS   float64
	GroundspdMS  float64
	ClimbMS      float64
	ThrottlePct  float64
}

// flightModes maps a PX4/ArduPilot-style custom_mode's low byte to a
// human name for the small set this fabric renders; unmapped values
// render as UNKNOWN per the spec.
var flightModes = map[byte]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	16: "POSHOLD",
	20: "SMART_RTL",
}

// Decode dispatches a Frame through the telemetry projection table (§4.1).
// It returns ok=false for message ids outside the table; the frame is
// still forwarded by the Hub, it simply does not mutate VehicleState.
func Decode(f *Frame) (StateDelta, bool) {
	switch f.MessageID {
	case MsgHeartbeat:
		return decodeHeartbeat(f.Payload), true
	case MsgSysStatus:
		return decodeSysStatus(f.Payload), true
	case MsgGPSRawInt:
		return decodeGPSRawInt(f.Payload), true
	case MsgAttitude:
		return decodeAttitude(f.Payload), true
	case MsgVFRHUD:
		return decodeVFRHUD(f.Payload), true
	case MsgBatteryStatus:
		return decodeBatteryStatus(f.Payload), true
	default:
		return StateDelta{}, false
	}
}

func u32(p []byte, off int) uint32 {
	if off+4 > len(p) {
		return 0
	}
	return uint32(p[off]) | uint32(p[off+1])<<8 | uint32(p[off+2])<<16 | uint32(p[off+3])<<24
}

func i32(p []byte, off int) int32 { return int32(u32(p, off)) }

func u16(p []byte, off int) uint16 {
	if off+2 > len(p) {
		return 0
	}
	return uint16(p[off]) | uint16(p[off+1])<<8
}

func i16(p []byte, off int) int16 { return int16(u16(p, off)) }

func f32(p []byte, off int) float32 {
	return math.Float32frombits(u32(p, off))
}

// decodeHeartbeat reads HEARTBEAT's custom_mode (u32@0), type (u8@4),
// autopilot (u8@5), base_mode (u8@6), system_status (u8@7).
// armed is fixed to base_mode & 0x80 per the resolved Open Question (§9):
// never derived from the type field.
func decodeHeartbeat(p []byte) StateDelta {
	if len(p) < 7 {
		return StateDelta{}
	}
	customMode := u32(p, 0)
	baseMode := p[6]
	armed := baseMode&0x80 != 0
	mode, ok := flightModes[byte(customMode)]
	if !ok {
		mode = "UNKNOWN"
	}
	return StateDelta{HasArmedMode: true, Armed: armed, FlightMode: mode}
}

// decodeSysStatus reads voltage_battery (u16 mV @14), current_battery
// (i16 cA @16), battery_remaining (i8 % @30) per common.xml SYS_STATUS.
func decodeSysStatus(p []byte) StateDelta {
	if len(p) < 31 {
		return StateDelta{}
	}
	voltageMV := u16(p, 14)
	currentCA := i16(p, 16)
	remaining := int8(p[30])
	remainPct := float64(remaining)
	if remaining < 0 {
		remainPct = -1
	}
	return StateDelta{
		HasBattery:     true,
		BatteryVoltage: round6(float64(voltageMV) / 1000.0),
		BatteryCurrent: round6(float64(currentCA) / 100.0),
		BatteryRemain:  remainPct,
	}
}

// decodeGPSRawInt reads lat/lon (i32, 1e7 deg @8/@12), alt (i32 mm @16),
// fix_type (u8 @28) and satellites_visible (u8 @29); the leading u64
// time_usec occupies @0-@7, per the common.xml wire layout.
func decodeGPSRawInt(p []byte) StateDelta {
	if len(p) < 30 {
		return StateDelta{}
	}
	lat := i32(p, 8)
	lon := i32(p, 12)
	alt := i32(p, 16)
	fixType := p[28]
	sats := p[29]
	return StateDelta{
		HasGPS:     true,
		Lat:        round7(float64(lat) / 1e7),
		Lon:        round7(float64(lon) / 1e7),
		AltitudeM:  round6(float64(alt) / 1000.0),
		FixType:    int(fixType),
		Satellites: int(sats),
	}
}

// decodeAttitude reads roll/pitch/yaw (float32 radians @4/@8/@12).
func decodeAttitude(p []byte) StateDelta {
	if len(p) < 16 {
		return StateDelta{}
	}
	roll := float64(f32(p, 4)) * 180 / math.Pi
	pitch := float64(f32(p, 8)) * 180 / math.Pi
	yaw := float64(f32(p, 12)) * 180 / math.Pi
	yaw = normalizeDeg(yaw)
	return StateDelta{
		HasAttitude: true,
		RollDeg:     round6(roll),
		PitchDeg:    round6(pitch),
		YawDeg:      round6(yaw),
	}
}

// decodeVFRHUD reads airspeed/groundspeed (float32 m/s @0/@4), alt
// (float32 m @8, fallback altitude source), climb (float32 m/s @12),
// heading (i16 deg @16, unused by VehicleState), throttle (u16 % @18).
func decodeVFRHUD(p []byte) StateDelta {
	if len(p) < 20 {
		return StateDelta{}
	}
	airspeed := f32(p, 0)
	groundspeed := f32(p, 4)
	alt := f32(p, 8)
	climb := f32(p, 12)
	throttle := u16(p, 18)
	return StateDelta{
		HasSpeed:    true,
		AirspeedMS:  round6(float64(airspeed)),
		GroundspdMS: round6(float64(groundspeed)),
		ClimbMS:     round6(float64(climb)),
		ThrottlePct: float64(throttle),
		AltitudeM:   round6(float64(alt)), // fallback altitude; see merge policy in internal/hub
	}
}

// decodeBatteryStatus aggregates per-cell voltages (u16 mV, 10 cells @10,
// after the two leading u32 fields current_consumed@0/energy_consumed@4
// and temperature@8) into a pack voltage, plus current_battery (i16 cA @30).
func decodeBatteryStatus(p []byte) StateDelta {
	if len(p) < 32 {
		return StateDelta{}
	}
	var packMV uint32
	for i := 0; i < 10; i++ {
		cell := u16(p, 10+i*2)
		if cell != 0xFFFF {
			packMV += uint32(cell)
		}
	}
	currentCA := i16(p, 30)
	return StateDelta{
		HasBattery:     true,
		BatteryVoltage: round6(float64(packMV) / 1000.0),
		BatteryCurrent: round6(float64(currentCA) / 100.0),
		BatteryRemain:  -1,
	}
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
