package autopilot

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of go.bug.st/serial.Port the Link depends on,
// narrowed to an interface so tests can substitute a pseudo-port (an
// in-memory byte-buffer fake) instead of a real OS handle.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// OpenSerial opens device at baud, 8-N-1, no hardware flow control (§6).
func OpenSerial(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return port, nil
}
