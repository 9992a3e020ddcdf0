// Package mavlink implements framing, parsing, and emission of MAVLink v1/v2
// packets. It is a pure, stateless codec: callers own the byte buffer and
// the parse cursor into it.
package mavlink

// Message ids this codec understands. Only these participate in the
// telemetry projection table (decode.go) and have a known CRC_EXTRA value;
// every other id is still framed and forwarded, just without a verified
// checksum.
const (
	MsgHeartbeat     = 0
	MsgSysStatus     = 1
	MsgGPSRawInt     = 24
	MsgAttitude      = 30
	MsgVFRHUD        = 74
	MsgBatteryStatus = 147
)

const (
	magicV1 = 0xFE
	magicV2 = 0xFD

	headerLenV1 = 6 // magic, payload_len, seq, sys, comp, msg_id (1 byte)
	headerLenV2 = 10
	sigLen      = 13

	incompatSigned = 0x01
)

// Version identifies which MAVLink wire generation produced a Frame.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Frame is a fully parsed MAVLink packet, carrying the exact raw bytes it
// was parsed from for zero-copy retransmission.
type Frame struct {
	Version        Version
	Sequence       byte
	SystemID       byte
	ComponentID    byte
	MessageID      uint32
	Payload        []byte
	IncompatFlags  byte // v2 only
	CompatFlags    byte // v2 only
	HasSignature   bool // v2 only: incompat bit 0x01 was set
	Signature      []byte
	Raw            []byte // exact on-wire bytes for this frame
	ChecksumOK     bool   // false when the message id had no known CRC_EXTRA
}

// Len returns the total on-wire length of the frame, matching the spec's
// invariant len(raw) == header_len + payload_len + 2 + signature_len.
func (f *Frame) Len() int {
	return len(f.Raw)
}
