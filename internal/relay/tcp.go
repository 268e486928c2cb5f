package relay

import (
	"net"
	"time"
)

type tcpRegistration struct {
	conn net.Conn
	resp chan int
}

type tcpRecv struct {
	slot int
	data []byte
}

type tcpDisconnect struct {
	slot int
}

// runTCP owns the listener's lifetime. Accept and per-connection reads
// happen in their own goroutines; every event they observe is handed
// off over a channel and applied to relay state from this single
// goroutine.
func (r *Relay) runTCP() {
	ln, err := net.Listen("tcp", listenAddr(r.spec.Port))
	if err != nil {
		r.logger.Error("relay: tcp listen failed", "err", err)
		r.end()
		return
	}
	defer ln.Close()

	r.armInitialTimers()

	regCh := make(chan tcpRegistration)
	recvCh := make(chan tcpRecv, 64)
	discCh := make(chan tcpDisconnect, 16)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go r.handshakeTCP(conn, regCh)
		}
	}()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case reg := <-regCh:
			slot := r.assignTCPSlot(reg.conn)
			reg.resp <- slot
			if slot >= 0 {
				r.registerCount++
				go r.readLoopTCP(slot, reg.conn, recvCh, discCh)
				r.checkReady()
			} else {
				reg.conn.Close()
			}

		case ev := <-recvCh:
			r.onPayload(ev.slot, ev.data)

		case ev := <-discCh:
			r.handleTCPDisconnect(ev.slot)

		case <-ticker.C:
			if r.tick() {
				ln.Close()
				r.closeAllTCP()
				r.end()
				return
			}
		}
	}
}

// handshakeTCP reads exactly the connection's first payload and
// accepts it only if it begins with REGISTER at offset 0 — unlike the
// UDP path, there is no offset-2 tolerance here.
func (r *Relay) handshakeTCP(conn net.Conn, regCh chan<- tcpRegistration) {
	buf := make([]byte, recvBufferBytes)
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	n, err := conn.Read(buf)
	if err != nil || !isRegisterPayload(buf[:n], false) {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	resp := make(chan int)
	regCh <- tcpRegistration{conn: conn, resp: resp}
	if slot := <-resp; slot < 0 {
		conn.Close()
	}
}

func (r *Relay) assignTCPSlot(conn net.Conn) int {
	for i := range r.slots {
		if !r.slots[i].connected {
			r.slots[i] = peerSlot{connected: true, conn: conn}
			return i
		}
	}
	return -1
}

func (r *Relay) readLoopTCP(slot int, conn net.Conn, recvCh chan<- tcpRecv, discCh chan<- tcpDisconnect) {
	buf := make([]byte, recvBufferBytes)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			discCh <- tcpDisconnect{slot: slot}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		recvCh <- tcpRecv{slot: slot, data: data}
	}
}

func (r *Relay) handleTCPDisconnect(slot int) {
	r.closeTCPSlot(slot)
	r.onPeerDisconnected()
}

func (r *Relay) closeTCPSlot(i int) {
	if r.slots[i].conn != nil {
		r.slots[i].conn.Close()
	}
	r.slots[i] = peerSlot{}
}

func (r *Relay) closeAllTCP() {
	for i := range r.slots {
		if r.slots[i].conn != nil {
			r.slots[i].conn.Close()
		}
	}
}
