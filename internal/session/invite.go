package session

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/go-rtpmidi/rtpmidi/internal/journal"
	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
	"github.com/go-rtpmidi/rtpmidi/internal/participant"
	"github.com/go-rtpmidi/rtpmidi/internal/wire"
)

// ConnectToListener enqueues an outbound invitation to a remote control
// endpoint. The actual IN is emitted on the next Tick.
func (s *Session) ConnectToListener(host string, port int) error {
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return err
		}
		ip = resolved.IP
	}

	control := participant.Endpoint{IP: ip, Port: port}
	key := control.String()

	s.mu.Lock()
	if _, exists := s.table[key]; exists {
		s.mu.Unlock()
		return nil
	}
	if len(s.table) >= MaxParticipants {
		s.mu.Unlock()
		s.reportError(TooManyParticipants, nil)
		return nil
	}
	p := participant.New(participant.Initiator, control, randomSendSeq())
	p.InitiatorToken = randomUint32()
	p.SessionName = s.opts.SessionName
	e := &participantEntry{p: p, decoder: midicmd.NewDecoder(), journal: journal.NewRecorder()}
	s.table[key] = e
	s.mu.Unlock()

	s.logger.Info("inviting listener", "control_endpoint", key)
	return nil
}

func randomSendSeq() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	v := binary.BigEndian.Uint16(b[:])
	if v == 0 {
		v = 1
	}
	return v & 0x7FFF
}

// advanceInvite drives one participant's invitation state machine:
// Initiating -> AwaitingControlOK -> ControlAccepted -> AwaitingDataOK
// -> DataAccepted -> Connected, retried at invitationRetryInterval up
// to maxInvitationAttempts.
func (s *Session) advanceInvite(e *participantEntry, now time.Time) {
	p := e.p
	if p.Kind != participant.Initiator {
		return
	}

	switch p.InviteState {
	case participant.Idle:
		p.InviteState = participant.Initiating
		fallthrough
	case participant.Initiating, participant.AwaitingControlOK:
		s.maybeSendInvite(e, now, s.controlConn, p.ControlEndpoint, func() { p.InviteState = participant.AwaitingControlOK })
	case participant.ControlAccepted, participant.AwaitingDataOK:
		s.maybeSendInvite(e, now, s.dataConn, p.DataEndpoint, func() { p.InviteState = participant.AwaitingDataOK })
	case participant.DataAccepted:
		p.InviteState = participant.Connected
		p.ConnectionAttempts = 0
		if s.opts.OnConnection != nil {
			s.opts.OnConnection.OnAttached(p.DeviceID(s.opts.ListenPort))
		}
	case participant.Connected:
		// steady state; nothing to retry.
	}
}

func (s *Session) maybeSendInvite(e *participantEntry, now time.Time, conn *net.UDPConn, endpoint participant.Endpoint, onSent func()) {
	p := e.p
	if !p.LastInviteSent.IsZero() && now.Sub(p.LastInviteSent) < invitationRetryInterval {
		return
	}
	if p.ConnectionAttempts >= maxInvitationAttempts {
		s.endSessionAndRemove(e, p.ControlEndpoint.String())
		s.reportError(NoResponseFromConnectionRequest, nil)
		return
	}

	buf := wire.EncodeInvitation(wire.CommandInvitation, p.InitiatorToken, s.localSSRC, s.opts.SessionName)
	s.sendTo(conn, endpoint, buf)
	p.LastInviteSent = now
	p.ConnectionAttempts++
	onSent()
}

// handleInvitation processes an inbound IN/OK/NO/BY on the control or
// data port, addressed by src.
func (s *Session) handleInvitation(conn *net.UDPConn, src *net.UDPAddr, inv wire.Invitation) {
	key := s.keyFor(src)
	if conn == s.dataConn {
		// Data-port PDUs arrive from the peer's data port, while the table
		// is keyed by its control endpoint; resolve them by ssrc instead.
		if e, ok := s.participantBySSRC(inv.SSRC); ok {
			key = e.p.ControlEndpoint.String()
		}
	}

	switch inv.Cmd {
	case wire.CommandInvitation:
		s.handleIN(conn, src, key, inv)
	case wire.CommandInvitationAccepted:
		s.handleOK(conn, key, inv)
	case wire.CommandInvitationRejected:
		s.removeParticipant(key)
	case wire.CommandEndSession:
		s.removeParticipant(key)
	}
}

func (s *Session) handleIN(conn *net.UDPConn, src *net.UDPAddr, key string, inv wire.Invitation) {
	if !s.rateLimiter.allow(src.IP.String()) {
		s.reportError(RateLimited, nil)
		return
	}

	s.mu.Lock()
	e, exists := s.table[key]
	isDataPort := conn == s.dataConn
	if !exists {
		if isDataPort {
			// A data-port IN must belong to an already-known control-side
			// participant; without one there is nothing to accept into.
			s.mu.Unlock()
			s.reportError(ParticipantNotFound, nil)
			return
		}
		if _, known := s.ssrcIndex[inv.SSRC]; known {
			// Already have a participant for this ssrc, just reachable from
			// a new address (e.g. a NAT rebind); ignore rather than create
			// a duplicate entry.
			s.mu.Unlock()
			return
		}
		if len(s.table) >= MaxParticipants {
			s.mu.Unlock()
			ok := wire.EncodeInvitation(wire.CommandInvitationRejected, inv.InitiatorToken, s.localSSRC, s.opts.SessionName)
			s.sendTo(conn, participant.Endpoint{IP: src.IP, Port: src.Port}, ok)
			s.reportError(TooManyParticipants, nil)
			return
		}
		control := participant.Endpoint{IP: src.IP, Port: src.Port}
		p := participant.New(participant.Listener, control, randomSendSeq())
		p.InitiatorToken = inv.InitiatorToken
		p.SSRC = inv.SSRC
		p.SessionName = inv.Name
		p.InviteState = participant.ControlAccepted
		e = &participantEntry{p: p, decoder: midicmd.NewDecoder(), journal: journal.NewRecorder()}
		s.table[key] = e
		s.ssrcIndex[inv.SSRC] = e
		s.mu.Unlock()

		okBuf := wire.EncodeInvitation(wire.CommandInvitationAccepted, inv.InitiatorToken, s.localSSRC, s.opts.SessionName)
		s.sendTo(conn, control, okBuf)
		return
	}
	s.mu.Unlock()

	if isDataPort && e.p.InviteState == participant.ControlAccepted {
		e.p.InviteState = participant.Connected
		if s.opts.OnConnection != nil {
			s.opts.OnConnection.OnAttached(e.p.DeviceID(s.opts.ListenPort))
		}
	}
	// Re-invite (peer didn't see our prior OK): answer idempotently.
	resp := wire.EncodeInvitation(wire.CommandInvitationAccepted, inv.InitiatorToken, s.localSSRC, s.opts.SessionName)
	s.sendTo(conn, participant.Endpoint{IP: src.IP, Port: src.Port}, resp)
}

func (s *Session) handleOK(conn *net.UDPConn, key string, inv wire.Invitation) {
	e, ok := s.participantByKey(key)
	if !ok {
		s.reportError(ParticipantNotFound, nil)
		return
	}
	p := e.p

	switch p.InviteState {
	case participant.Initiating, participant.AwaitingControlOK:
		p.SSRC = inv.SSRC
		p.SessionName = inv.Name
		p.InviteState = participant.ControlAccepted
		p.LastInviteSent = time.Time{} // force immediate data-port invite next tick
		p.ConnectionAttempts = 0
		s.registerLearnedSSRC(e)
	case participant.ControlAccepted, participant.AwaitingDataOK:
		p.InviteState = participant.DataAccepted
	}
}

// endSessionAndRemove emits a BY and removes the participant, firing
// OnDetached exactly once.
func (s *Session) endSessionAndRemove(e *participantEntry, key string) {
	by := wire.EncodeEndSession(e.p.InitiatorToken, s.localSSRC)
	s.sendTo(s.controlConn, e.p.ControlEndpoint, by)
	s.removeParticipant(key)
}
