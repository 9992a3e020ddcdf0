package autopilot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skybridge-io/mavfabric/internal/backoff"
	"github.com/skybridge-io/mavfabric/internal/errs"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

const (
	connectTimeout       = 5 * time.Second
	heartbeatWaitTimeout = 10 * time.Second
	readPollWindow       = 100 * time.Millisecond
	gcsHeartbeatPeriod   = time.Second
	resyncWarnThreshold  = 10 // sustained resyncs within 1s
)

// OpenFunc abstracts serial.Open so tests can inject a pseudo-port.
type OpenFunc func(device string, baud int) (Port, error)

// Sink receives every Frame the Link parses off the wire.
type Sink func(ctx context.Context, f *mavlink.Frame)

// Link owns one serial connection to a flight controller (§4.2).
type Link struct {
	log    *slog.Logger
	device string
	baud   int
	open   OpenFunc
	sink   Sink

	outbound chan *mavlink.Frame

	mu          sync.RWMutex
	state       State
	systemID    byte
	componentID byte

	seq atomic.Uint32

	resyncCount   atomic.Int64
	resyncWindow  atomic.Int64 // unix seconds of the current 1s window
	resyncInWin   atomic.Int64
}

// New builds a Link that has not yet connected; call Run to drive its
// connect/read/write/reconnect state machine until ctx is canceled.
func New(log *slog.Logger, device string, baud int, open OpenFunc, sink Sink) *Link {
	if open == nil {
		open = OpenSerial
	}
	return &Link{
		log:      log,
		device:   device,
		baud:     baud,
		open:     open,
		sink:     sink,
		outbound: make(chan *mavlink.Frame, 256),
		state:    Disconnected,
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Identity returns the system/component id observed during the
// handshake, for downstream command targeting.
func (l *Link) Identity() (systemID, componentID byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.systemID, l.componentID
}

// Submit enqueues a frame for transmission. Only valid while Active;
// otherwise returns NotReadyError (§4.2).
func (l *Link) Submit(f *mavlink.Frame) error {
	if l.State() != Active {
		return &errs.NotReadyError{State: l.State().String()}
	}
	select {
	case l.outbound <- f:
		return nil
	default:
		return &errs.NotReadyError{State: "outbound queue full"}
	}
}

// Run drives the Link's full lifecycle until ctx is canceled: connect,
// handshake, read/write, and reconnect-with-backoff on failure.
func (l *Link) Run(ctx context.Context) {
	bo := backoff.Default()
	for {
		if ctx.Err() != nil {
			l.setState(Closed)
			return
		}

		port, err := l.connectOnce(ctx)
		if err != nil {
			l.log.Warn("autopilot connect failed", "err", err, "device", l.device)
			l.setState(Degraded)
			wait(ctx, bo.Next())
			continue
		}

		bo.Reset()
		ok := l.runActive(ctx, port)
		port.Close()
		if !ok {
			l.setState(Degraded)
			wait(ctx, bo.Next())
		}
	}
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (l *Link) connectOnce(ctx context.Context) (Port, error) {
	l.setState(Connecting)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	type result struct {
		port Port
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := l.open(l.device, l.baud)
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.port, l.handshake(ctx, r.port)
	case <-connectCtx.Done():
		return nil, connectCtx.Err()
	}
}

// handshake reads frames until a HEARTBEAT (msg_id=0) arrives or
// heartbeatWaitTimeout elapses.
func (l *Link) handshake(ctx context.Context, port Port) error {
	l.setState(WaitingHeartbeat)
	hbCtx, cancel := context.WithTimeout(ctx, heartbeatWaitTimeout)
	defer cancel()

	buf := make([]byte, 0, 4096)
	read := make([]byte, 1024)
	for {
		if hbCtx.Err() != nil {
			return errors.New("no heartbeat within timeout")
		}
		port.SetReadTimeout(readPollWindow)
		n, err := port.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			for {
				res := mavlink.Parse(buf)
				switch res.Outcome {
				case mavlink.OutcomeFrame:
					buf = buf[res.Consumed:]
					if res.Frame.MessageID == mavlink.MsgHeartbeat {
						l.mu.Lock()
						l.systemID = res.Frame.SystemID
						l.componentID = res.Frame.ComponentID
						l.mu.Unlock()
						return nil
					}
				case mavlink.OutcomeResync:
					buf = buf[res.Consumed:]
				default: // NeedMore
					goto nextRead
				}
			}
		}
		if err != nil && !isTimeout(err) {
			return err
		}
	nextRead:
	}
}

// runActive runs the read and write loops until either fails or ctx is
// canceled. Returns false if it should reconnect.
func (l *Link) runActive(ctx context.Context, port Port) bool {
	l.setState(Active)

	activeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	failed := make(chan struct{}, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.readLoop(activeCtx, port); err != nil {
			l.log.Warn("autopilot read loop ended", "err", err)
			select {
			case failed <- struct{}{}:
			default:
			}
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.writeLoop(activeCtx, port); err != nil {
			l.log.Warn("autopilot write loop ended", "err", err)
			select {
			case failed <- struct{}{}:
			default:
			}
			cancel()
		}
	}()

	<-activeCtx.Done()
	wg.Wait()

	select {
	case <-failed:
		return false
	default:
		return ctx.Err() == nil // canceled by caller shutdown, not failure
	}
}

func (l *Link) readLoop(ctx context.Context, port Port) error {
	buf := make([]byte, 0, 8192)
	read := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil
		}
		port.SetReadTimeout(readPollWindow)
		n, err := port.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			for {
				res := mavlink.Parse(buf)
				switch res.Outcome {
				case mavlink.OutcomeFrame:
					buf = buf[res.Consumed:]
					l.sink(ctx, res.Frame)
				case mavlink.OutcomeResync:
					buf = buf[res.Consumed:]
					l.countResync()
				default:
					goto nextRead
				}
			}
		}
		if err != nil && !isTimeout(err) {
			return &errs.TransientIOError{Op: "serial_read", Cause: err}
		}
	nextRead:
	}
}

func (l *Link) writeLoop(ctx context.Context, port Port) error {
	ticker := time.NewTicker(gcsHeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-l.outbound:
			if _, err := port.Write(f.Raw); err != nil {
				return &errs.TransientIOError{Op: "serial_write", Cause: err}
			}
		case <-ticker.C:
			seq := byte(l.seq.Add(1))
			hb := mavlink.GCSHeartbeat(seq)
			if _, err := port.Write(hb); err != nil {
				return &errs.TransientIOError{Op: "serial_write_heartbeat", Cause: err}
			}
		}
	}
}

func (l *Link) countResync() {
	now := time.Now().Unix()
	if l.resyncWindow.Swap(now) != now {
		l.resyncInWin.Store(0)
	}
	n := l.resyncInWin.Add(1)
	l.resyncCount.Add(1)
	if n == resyncWarnThreshold {
		l.log.Warn("sustained mavlink resyncs", "count_last_second", n, "device", l.device)
	}
}

// ResyncCount returns the cumulative number of resyncs observed.
func (l *Link) ResyncCount() int64 { return l.resyncCount.Load() }

type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var te timeoutError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
