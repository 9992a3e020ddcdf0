package mavlink

// SerializeFields carries the caller-supplied fields needed to emit a v2
// packet; the codec fills in magic, incompat/compat (always 0 on the
// emission side), and checksum.
type SerializeFields struct {
	Sequence    byte
	SystemID    byte
	ComponentID byte
	MessageID   uint32
	Payload     []byte
}

// Serialize produces a valid, checksummed v2 packet from fields. It never
// sets the signature bit; signatures are a pass-through-only concern on
// the receive side (§4.1).
func Serialize(fields SerializeFields) []byte {
	payloadLen := len(fields.Payload)
	buf := make([]byte, headerLenV2+payloadLen+2)
	buf[0] = magicV2
	buf[1] = byte(payloadLen)
	buf[2] = 0 // incompat
	buf[3] = 0 // compat
	buf[4] = fields.Sequence
	buf[5] = fields.SystemID
	buf[6] = fields.ComponentID
	buf[7] = byte(fields.MessageID)
	buf[8] = byte(fields.MessageID >> 8)
	buf[9] = byte(fields.MessageID >> 16)
	copy(buf[headerLenV2:], fields.Payload)

	crc, _ := checksum(buf[1:headerLenV2], fields.Payload, fields.MessageID)
	buf[headerLenV2+payloadLen] = byte(crc)
	buf[headerLenV2+payloadLen+1] = byte(crc >> 8)
	return buf
}

// MAV_TYPE_GCS and MAV_AUTOPILOT_INVALID per common.xml, used only by the
// ground-station HEARTBEAT helper below.
const (
	mavTypeGCS          = 6
	mavAutopilotInvalid = 8
	mavStateActive      = 4
	mavlinkVersion3     = 3
)

// GCSHeartbeat builds a well-formed ground-station HEARTBEAT frame
// (system_id=255, component_id=190) per §4.1's serialize contract.
func GCSHeartbeat(sequence byte) []byte {
	payload := make([]byte, 9)
	// custom_mode (u32) left zero
	payload[4] = mavTypeGCS
	payload[5] = mavAutopilotInvalid
	payload[6] = 0 // base_mode
	payload[7] = mavStateActive
	payload[8] = mavlinkVersion3

	return Serialize(SerializeFields{
		Sequence:    sequence,
		SystemID:    255,
		ComponentID: 190,
		MessageID:   MsgHeartbeat,
		Payload:     payload,
	})
}
