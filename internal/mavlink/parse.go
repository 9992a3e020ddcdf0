package mavlink

// Outcome distinguishes the three shapes parse(buf) can return.
type Outcome int

const (
	// OutcomeFrame means a well-formed Frame was parsed; Consumed bytes
	// should be dropped from the caller's buffer.
	OutcomeFrame Outcome = iota
	// OutcomeNeedMore means the buffer does not yet hold a full packet;
	// the caller should append more bytes and retry without consuming.
	OutcomeNeedMore
	// OutcomeResync means bytes were discarded because they did not form
	// a valid packet at the scanned start byte; Consumed bytes should be
	// dropped and parsing retried on what remains.
	OutcomeResync
)

// Result is the return value of Parse.
type Result struct {
	Outcome  Outcome
	Frame    *Frame
	Consumed int
	Err      *ParseError // set on a checksum Resync; nil when noise before a start byte was skipped
}

// Parse scans buf for one MAVLink v1 or v2 packet starting at the first
// recognized magic byte. It never mutates buf and never performs I/O.
//
// Bytes preceding a start byte are treated as noise and reported as a
// Resync with Consumed equal to their count. A checksum failure is also
// reported as Resync, but advances only one byte past the presumed start
// byte (not the full candidate packet length) so a spuriously-matched
// magic byte inside random data does not eat real frames that follow it.
func Parse(buf []byte) Result {
	offset := scanForStart(buf)
	if offset > 0 {
		return Result{Outcome: OutcomeResync, Consumed: offset}
	}
	if len(buf) == 0 {
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}

	switch buf[0] {
	case magicV2:
		return parseV2(buf)
	case magicV1:
		return parseV1(buf)
	default:
		// scanForStart guarantees buf[0] is a start byte when offset==0
		// and buf is non-empty; this branch is unreachable in practice.
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}
}

// scanForStart returns the offset of the first v1 or v2 magic byte in buf,
// or len(buf) if none is present.
func scanForStart(buf []byte) int {
	for i, b := range buf {
		if b == magicV1 || b == magicV2 {
			return i
		}
	}
	return len(buf)
}

func parseV2(buf []byte) Result {
	if len(buf) < headerLenV2 {
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}
	payloadLen := int(buf[1])
	incompat := buf[2]
	compat := buf[3]
	seq := buf[4]
	sys := buf[5]
	comp := buf[6]
	msgID := uint32(buf[7]) | uint32(buf[8])<<8 | uint32(buf[9])<<16

	sig := 0
	hasSig := incompat&incompatSigned != 0
	if hasSig {
		sig = sigLen
	}
	total := headerLenV2 + payloadLen + 2 + sig
	if len(buf) < total {
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}

	payload := buf[headerLenV2 : headerLenV2+payloadLen]
	crcBytes := buf[headerLenV2+payloadLen : headerLenV2+payloadLen+2]
	wantCRC := uint16(crcBytes[0]) | uint16(crcBytes[1])<<8

	gotCRC, known := checksum(buf[1:headerLenV2], payload, msgID)
	if known && gotCRC != wantCRC {
		return Result{Outcome: OutcomeResync, Consumed: 1, Err: &ParseError{Kind: BadChecksum}}
	}

	var signature []byte
	if hasSig {
		signature = buf[headerLenV2+payloadLen+2 : total]
	}

	frame := &Frame{
		Version:       V2,
		Sequence:      seq,
		SystemID:      sys,
		ComponentID:   comp,
		MessageID:     msgID,
		Payload:       payload,
		IncompatFlags: incompat,
		CompatFlags:   compat,
		HasSignature:  hasSig,
		Signature:     signature,
		Raw:           buf[:total],
		ChecksumOK:    known,
	}
	return Result{Outcome: OutcomeFrame, Frame: frame, Consumed: total}
}

func parseV1(buf []byte) Result {
	if len(buf) < headerLenV1 {
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}
	payloadLen := int(buf[1])
	seq := buf[2]
	sys := buf[3]
	comp := buf[4]
	msgID := uint32(buf[5])

	total := headerLenV1 + payloadLen + 2
	if len(buf) < total {
		return Result{Outcome: OutcomeNeedMore, Consumed: 0}
	}

	payload := buf[headerLenV1 : headerLenV1+payloadLen]
	crcBytes := buf[headerLenV1+payloadLen : total]
	wantCRC := uint16(crcBytes[0]) | uint16(crcBytes[1])<<8

	gotCRC, known := checksum(buf[1:headerLenV1], payload, msgID)
	if known && gotCRC != wantCRC {
		return Result{Outcome: OutcomeResync, Consumed: 1, Err: &ParseError{Kind: BadChecksum}}
	}

	frame := &Frame{
		Version:     V1,
		Sequence:    seq,
		SystemID:    sys,
		ComponentID: comp,
		MessageID:   msgID,
		Payload:     payload,
		Raw:         buf[:total],
		ChecksumOK:  known,
	}
	return Result{Outcome: OutcomeFrame, Frame: frame, Consumed: total}
}
