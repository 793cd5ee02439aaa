package session

import (
	"net"
	"time"

	"github.com/go-rtpmidi/rtpmidi/internal/participant"
	"github.com/go-rtpmidi/rtpmidi/internal/wire"
)

// sendTo writes buf to endpoint over conn, tallying packet/byte counters
// and reporting SendPacketsDropped on write failure rather than returning
// an error.
func (s *Session) sendTo(conn *net.UDPConn, endpoint participant.Endpoint, buf []byte) {
	if conn == nil {
		return
	}
	addr := &net.UDPAddr{IP: endpoint.IP, Port: endpoint.Port}
	n, err := conn.WriteToUDP(buf, addr)
	s.mu.Lock()
	if err != nil {
		s.packetsDropped++
		s.mu.Unlock()
		s.reportError(SendPacketsDropped, err)
		return
	}
	s.packetsSent++
	s.bytesSent += uint64(n)
	s.mu.Unlock()
}

// drainControlSocket and drainDataSocket poll their socket for every
// datagram currently queued, without blocking past what has already
// arrived — Tick is expected to run on a fixed cadence rather than block
// waiting on the network.
func (s *Session) drainControlSocket() {
	s.drainSocket(s.controlConn)
}

func (s *Session) drainDataSocket() {
	s.drainSocket(s.dataConn)
}

func (s *Session) drainSocket(conn *net.UDPConn) {
	if conn == nil {
		return
	}
	buf := make([]byte, 2048)
	for {
		if err := conn.SetReadDeadline(time.Now()); err != nil {
			return
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // timeout (no more queued datagrams) or the socket closed under us
		}
		s.mu.Lock()
		s.packetsReceived++
		s.bytesReceived += uint64(n)
		s.mu.Unlock()

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.handlePacket(conn, addr, pkt)
	}
}

// handlePacket classifies an inbound datagram by the AppleMIDI control
// signature (0xFFFF) versus RTP-MIDI's version bits and dispatches it to
// the appropriate decoder.
func (s *Session) handlePacket(conn *net.UDPConn, src *net.UDPAddr, buf []byte) {
	if len(buf) >= 4 && buf[0] == 0xFF && buf[1] == 0xFF {
		cmd, err := wire.PeekCommand(buf)
		if err != nil {
			s.reportError(Parse, err)
			return
		}
		switch cmd {
		case wire.CommandInvitation, wire.CommandInvitationAccepted, wire.CommandInvitationRejected, wire.CommandEndSession:
			inv, _, derr := wire.DecodeInvitation(buf)
			if derr != nil {
				s.reportError(Parse, derr)
				return
			}
			s.handleInvitation(conn, src, inv)
		case wire.CommandSynchronization:
			sync, _, derr := wire.DecodeSync(buf)
			if derr != nil {
				s.reportError(Parse, derr)
				return
			}
			s.handleSync(sync)
		case wire.CommandReceiverFeedback:
			fb, _, derr := wire.DecodeFeedback(buf)
			if derr != nil {
				s.reportError(Parse, derr)
				return
			}
			s.handleFeedbackPDU(fb)
		case wire.CommandBitrateReceiveLimit:
			// RL is recorded on the Participant and never acted upon: this
			// library has no outbound bandwidth governor to throttle.
			limit, _, derr := wire.DecodeBitrateLimit(buf)
			if derr != nil {
				s.reportError(Parse, derr)
				return
			}
			if e, ok := s.participantBySSRC(limit.SSRC); ok {
				e.p.ReceiveBitrateLimit = limit.Limit
			}
		default:
			s.reportError(UnexpectedParse, nil)
		}
		return
	}

	if conn != s.dataConn {
		s.reportError(UnexpectedParse, nil)
		return
	}
	s.handleRTPMIDI(buf)
}
