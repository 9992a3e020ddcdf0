package mavlink

var msgNames = map[uint32]string{
	MsgHeartbeat:     "HEARTBEAT",
	MsgSysStatus:     "SYS_STATUS",
	MsgGPSRawInt:     "GPS_RAW_INT",
	MsgAttitude:      "ATTITUDE",
	MsgVFRHUD:        "VFR_HUD",
	MsgBatteryStatus: "BATTERY_STATUS",
}

// Name returns the human-readable message name for ids in the telemetry
// projection table, or "UNKNOWN" for anything else.
func Name(msgID uint32) string {
	if n, ok := msgNames[msgID]; ok {
		return n
	}
	return "UNKNOWN"
}
