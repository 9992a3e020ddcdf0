package mavlink

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeThenParseRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 255} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}
		raw := Serialize(SerializeFields{
			Sequence:    7,
			SystemID:    1,
			ComponentID: 1,
			MessageID:   MsgHeartbeat,
			Payload:     payload,
		})

		res := Parse(raw)
		require.Equal(t, OutcomeFrame, res.Outcome)
		require.Equal(t, len(raw), res.Consumed)
		require.Equal(t, raw, res.Frame.Raw)
		require.True(t, res.Frame.ChecksumOK)
	}
}

func TestParseDiscardsNoiseBeforeStartByte(t *testing.T) {
	noise := []byte{0x00, 0x01, 0x02}
	raw := GCSHeartbeat(0)
	buf := append(append([]byte{}, noise...), raw...)

	res := Parse(buf)
	require.Equal(t, OutcomeResync, res.Outcome)
	require.Equal(t, len(noise), res.Consumed)

	res2 := Parse(buf[res.Consumed:])
	require.Equal(t, OutcomeFrame, res2.Outcome)
	require.Equal(t, raw, res2.Frame.Raw)
}

func TestParseNeedMoreOnShortBuffer(t *testing.T) {
	raw := GCSHeartbeat(0)
	res := Parse(raw[:len(raw)-1])
	require.Equal(t, OutcomeNeedMore, res.Outcome)
}

func TestParseBadChecksumResyncsOneByte(t *testing.T) {
	raw := GCSHeartbeat(0)
	corrupt := append([]byte{}, raw...)
	corrupt[len(corrupt)-1] ^= 0xFF // flip every bit of the checksum's high byte

	res := Parse(corrupt)
	require.Equal(t, OutcomeResync, res.Outcome)
	require.Equal(t, 1, res.Consumed)
	require.NotNil(t, res.Err)
	require.Equal(t, BadChecksum, res.Err.Kind)
}

func TestParseV1Frame(t *testing.T) {
	// Hand-build a v1 HEARTBEAT: magic, len, seq, sys, comp, msgid, payload, crc.
	payload := make([]byte, 9)
	payload[6] = 0x80 // base_mode armed
	header := []byte{magicV1, byte(len(payload)), 3, 1, 1, MsgHeartbeat}
	crc, _ := checksum(header[1:], payload, MsgHeartbeat)
	buf := append(append([]byte{}, header...), payload...)
	buf = append(buf, byte(crc), byte(crc>>8))

	res := Parse(buf)
	require.Equal(t, OutcomeFrame, res.Outcome)
	require.Equal(t, V1, res.Frame.Version)
	require.True(t, res.Frame.ChecksumOK)

	delta, ok := Decode(res.Frame)
	require.True(t, ok)
	require.True(t, delta.Armed)
}

func TestDecodeGPSRawInt(t *testing.T) {
	payload := make([]byte, 30)
	putI32(payload, 8, 557558000)
	putI32(payload, 12, 376176000)
	putI32(payload, 16, 150000)
	payload[28] = 3
	payload[29] = 12

	f := &Frame{MessageID: MsgGPSRawInt, Payload: payload}
	delta, ok := Decode(f)
	require.True(t, ok)
	require.InDelta(t, 55.7558, delta.Lat, 1e-4)
	require.InDelta(t, 37.6176, delta.Lon, 1e-4)
	require.InDelta(t, 150.0, delta.AltitudeM, 1e-4)
	require.Equal(t, 12, delta.Satellites)
}

func TestDecodeVFRHUDReadsThrottleNotHeading(t *testing.T) {
	payload := make([]byte, 20)
	putF32(payload, 0, 12.5)  // airspeed
	putF32(payload, 4, 11.0)  // groundspeed
	putF32(payload, 8, 100.0) // alt
	putF32(payload, 12, 0.5)  // climb
	putU16(payload, 16, 270)  // heading, must not land in ThrottlePct
	putU16(payload, 18, 77)   // throttle

	f := &Frame{MessageID: MsgVFRHUD, Payload: payload}
	delta, ok := Decode(f)
	require.True(t, ok)
	require.InDelta(t, 77.0, delta.ThrottlePct, 1e-6)
	require.InDelta(t, 12.5, delta.AirspeedMS, 1e-4)
	require.InDelta(t, 11.0, delta.GroundspdMS, 1e-4)
}

func TestDecodeBatteryStatus(t *testing.T) {
	payload := make([]byte, 32)
	// current_consumed@0, energy_consumed@4 left zero; temperature@8 left zero.
	for i := 0; i < 10; i++ {
		putU16(payload, 10+i*2, 0xFFFF)
	}
	putU16(payload, 10, 4200) // cell 0
	putU16(payload, 12, 4100) // cell 1
	putI16(payload, 30, 1550) // current_battery, cA

	f := &Frame{MessageID: MsgBatteryStatus, Payload: payload}
	delta, ok := Decode(f)
	require.True(t, ok)
	require.InDelta(t, 8.3, delta.BatteryVoltage, 1e-6)
	require.InDelta(t, 15.5, delta.BatteryCurrent, 1e-6)
}

func TestUnknownMessageIDNotDecoded(t *testing.T) {
	f := &Frame{MessageID: 9999, Payload: []byte{1, 2, 3}}
	_, ok := Decode(f)
	require.False(t, ok)
}

func putI32(p []byte, off int, v int32) {
	u := uint32(v)
	p[off] = byte(u)
	p[off+1] = byte(u >> 8)
	p[off+2] = byte(u >> 16)
	p[off+3] = byte(u >> 24)
}

func putU16(p []byte, off int, v uint16) {
	p[off] = byte(v)
	p[off+1] = byte(v >> 8)
}

func putI16(p []byte, off int, v int16) {
	putU16(p, off, uint16(v))
}

func putF32(p []byte, off int, v float32) {
	putU32(p, off, math.Float32bits(v))
}

func putU32(p []byte, off int, v uint32) {
	p[off] = byte(v)
	p[off+1] = byte(v >> 8)
	p[off+2] = byte(v >> 16)
	p[off+3] = byte(v >> 24)
}
