// Package relay implements the per-game packet relay: a dedicated
// task spawned when a game activates, owning one listening socket and
// a fixed-size peer slot array.
//
// A handful of goroutines only ever read sockets and push events onto
// channels; every mutation of relay state happens inside the single
// goroutine draining those channels, so the slot array and counters
// never need a mutex.
package relay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/diag"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/transport"
)

const (
	// DiagInterval is the fixed period for the periodic diagnostics
	// line.
	DiagInterval = 10 * time.Second

	// DefaultTickInterval is the relay's poll/select timeout.
	DefaultTickInterval = 15 * time.Millisecond

	// handshakeTimeout bounds how long a TCP accept waits for the
	// initial REGISTER payload.
	handshakeTimeout = 5 * time.Second

	registerPrefix  = "REGISTER"
	dupQueueCap     = 256
	recvBufferBytes = 2048
)

// Ender is the callback a Relay uses to report its own termination.
// The LobbyCoordinator implements this; relay never imports the lobby
// package, avoiding an import cycle.
type Ender interface {
	EndGame(gameID string)
}

// GameSpec is the minimal view of a Game a Relay needs to run.
type GameSpec struct {
	ID         string
	Port       int
	MaxPlayers int
	Transport  transport.Transport
}

// Config holds the relay's tunables, sourced from the server config file.
type Config struct {
	DropTimeout   time.Duration
	IdleTimeout   time.Duration
	UDPDupEnabled bool
	UDPDupDelay   time.Duration
	TickInterval  time.Duration
}

type state int

const (
	stateInitializing state = iota
	stateWaitingForPeers
	stateReady
	stateEnded
)

type peerSlot struct {
	connected bool
	conn      net.Conn     // TCP mode
	addr      *net.UDPAddr // UDP mode
	seq       seqTracker
}

// Relay is one game's packet forwarder. Run blocks until the game
// ends; callers spawn it with `go r.Run()`.
type Relay struct {
	spec   GameSpec
	cfg    Config
	ender  Ender
	logger *slog.Logger

	// instanceID is an internal-only correlation id (never sent over
	// the wire) distinguishing one relay run from the next even if a
	// game id were ever reused; it rides along in diagnostics only.
	instanceID string

	slots []peerSlot
	state state

	dropDeadline time.Time
	lastActivity time.Time
	lastDiag     time.Time

	dup     *dupQueue
	udpConn *net.UDPConn

	rx, tx, dupTx            uint64
	registerCount, dropCount uint64
	unknownCount             uint64

	endOnce sync.Once
}

// New builds a Relay for spec. It does not start listening until Run
// is called.
func New(cfg Config, spec GameSpec, ender Ender, logger *slog.Logger) *Relay {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	instanceID := uuid.NewString()
	return &Relay{
		spec:       spec,
		cfg:        cfg,
		ender:      ender,
		instanceID: instanceID,
		logger:     logger.With("game_id", spec.ID, "transport", string(spec.Transport), "relay_instance", instanceID),
		slots:      make([]peerSlot, spec.MaxPlayers),
		dup:        newDupQueue(dupQueueCap),
	}
}

// Run drives the relay's setup → WaitingForPeers → Ready → Ended
// state machine until the game ends.
func (r *Relay) Run() {
	switch r.spec.Transport {
	case transport.UDP:
		r.runUDP()
	default:
		r.runTCP()
	}
}

func (r *Relay) armInitialTimers() {
	now := time.Now()
	r.state = stateWaitingForPeers
	r.dropDeadline = now.Add(r.cfg.DropTimeout)
	r.lastActivity = now
	r.lastDiag = now
}

// checkReady promotes the relay to Ready once every slot is connected
// and clears the drop-deadline.
func (r *Relay) checkReady() {
	if r.state == stateReady {
		return
	}
	for i := range r.slots {
		if !r.slots[i].connected {
			return
		}
	}
	r.state = stateReady
	r.dropDeadline = time.Time{}
}

// onPeerDisconnected re-arms the drop-deadline only if it is currently
// unset, never overwriting a live deadline, and drops the relay back
// out of Ready.
func (r *Relay) onPeerDisconnected() {
	if r.state == stateReady {
		r.state = stateWaitingForPeers
	}
	if r.dropDeadline.IsZero() {
		r.dropDeadline = time.Now().Add(r.cfg.DropTimeout)
	}
	r.lastActivity = time.Now()
}

// onPayload applies sequence tracking (UDP only) and forwards to the
// next ring slot once ready.
func (r *Relay) onPayload(slot int, data []byte) {
	r.rx++
	r.lastActivity = time.Now()

	if r.spec.Transport == transport.UDP {
		if len(data) < 2 {
			r.slots[slot].seq.short++
		} else {
			seq := binary.BigEndian.Uint16(data[:2])
			r.slots[slot].seq.observe(seq)
		}
	}

	if r.state != stateReady {
		return
	}
	next := (slot + 1) % len(r.slots)
	r.forward(next, data)
}

func (r *Relay) forward(next int, data []byte) {
	switch r.spec.Transport {
	case transport.UDP:
		r.forwardUDP(next, data)
	default:
		r.forwardTCP(next, data)
	}
}

func (r *Relay) forwardTCP(next int, data []byte) {
	conn := r.slots[next].conn
	if conn == nil {
		return
	}
	if _, err := conn.Write(data); err != nil {
		r.dropCount++
		r.closeTCPSlot(next)
		r.onPeerDisconnected()
		return
	}
	r.tx++
}

func (r *Relay) forwardUDP(next int, data []byte) {
	addr := r.slots[next].addr
	if addr == nil {
		return
	}
	if _, err := r.udpConn.WriteToUDP(data, addr); err != nil {
		r.dropCount++
		return
	}
	r.tx++

	if r.cfg.UDPDupEnabled {
		if !r.dup.enqueue(addr, data, time.Now().Add(r.cfg.UDPDupDelay)) {
			r.dropCount++ // queue overflow counts as a drop
		}
	}
}

// tick runs the housekeeping shared by both transports every poll
// interval: timeout checks, duplicate-queue drain, diagnostics.
// Returns true if the relay should end.
func (r *Relay) tick() bool {
	now := time.Now()

	if !r.dropDeadline.IsZero() && !now.Before(r.dropDeadline) {
		r.logger.Info("relay: drop timeout reached")
		return true
	}
	if now.Sub(r.lastActivity) > r.cfg.IdleTimeout {
		r.logger.Info("relay: idle timeout reached")
		return true
	}

	if r.cfg.UDPDupEnabled && r.spec.Transport == transport.UDP && r.udpConn != nil {
		r.dup.drainDue(now, func(addr *net.UDPAddr, payload []byte) {
			if _, err := r.udpConn.WriteToUDP(payload, addr); err == nil {
				r.dupTx++
			}
		})
	}

	if now.Sub(r.lastDiag) >= DiagInterval {
		r.emitDiagnostics()
		r.lastDiag = now
	}
	return false
}

func (r *Relay) emitDiagnostics() {
	var inOrder, ahead, behind, dup, short, gapTotal uint64
	var gapMax uint16
	for i := range r.slots {
		s := &r.slots[i].seq
		inOrder += s.inOrder
		ahead += s.ahead
		behind += s.behind
		dup += s.duplicate
		short += s.short
		gapTotal += s.gapTotal
		if s.gapMax > gapMax {
			gapMax = s.gapMax
		}
	}

	r.logger.Info("relay diagnostics",
		"rx", r.rx, "tx", r.tx, "dup_tx", r.dupTx,
		"register", r.registerCount, "drop", r.dropCount, "unknown", r.unknownCount,
		"seq_in_order", inOrder, "seq_ahead", ahead, "seq_behind", behind,
		"seq_duplicate", dup, "seq_short", short,
		"gap_total", gapTotal, "gap_max", gapMax,
	)

	snap := diag.Snapshot{
		GameID: r.spec.ID, InstanceID: r.instanceID, RX: r.rx, TX: r.tx, DupTX: r.dupTx,
		Register: r.registerCount, Drop: r.dropCount, Unknown: r.unknownCount,
		SeqInOrder: inOrder, SeqAhead: ahead, SeqBehind: behind,
		SeqDuplicate: dup, SeqShort: short, GapTotal: gapTotal, GapMax: gapMax,
	}
	if b, err := diag.Encode(snap); err == nil {
		r.logger.Debug("relay diagnostics snapshot", "bytes", len(b), "snapshot", b)
	}
}

func (r *Relay) end() {
	r.endOnce.Do(func() {
		r.state = stateEnded
		r.emitDiagnostics()
		r.ender.EndGame(r.spec.ID)
	})
}

func isRegisterPayload(data []byte, allowOffset2 bool) bool {
	prefix := []byte(registerPrefix)
	if bytes.HasPrefix(data, prefix) {
		return true
	}
	if allowOffset2 && len(data) >= 2+len(prefix) && bytes.HasPrefix(data[2:], prefix) {
		return true
	}
	return false
}

func listenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
