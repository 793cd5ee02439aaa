package session

import (
	"time"

	"github.com/go-rtpmidi/rtpmidi/internal/participant"
	"github.com/go-rtpmidi/rtpmidi/internal/wire"
)

// advanceSync drives the clock-sync heartbeat for a connected
// participant: CK(0) is re-sent on the heartbeat cadence until a CK(2)
// closes the exchange, capped at MaxCK0Attempts before the participant
// is dropped with MaxAttempts.
func (s *Session) advanceSync(e *participantEntry, now time.Time) {
	p := e.p
	if p.Kind != participant.Initiator {
		return
	}
	if p.InviteState != participant.Connected || p.SSRC == 0 {
		return
	}

	if p.Synchronizing {
		// Awaiting CK(1): resend CK(0) once ck0RetryInterval passes without a reply.
		const ck0RetryInterval = 10 * time.Second
		elapsedMs := (s.clock.Now() - int64(e.pendingTS0)) * 1000 / int64(s.clock.Rate())
		if time.Duration(elapsedMs)*time.Millisecond < ck0RetryInterval {
			return
		}
	} else {
		interval := syncHeartbeatCadence[len(syncHeartbeatCadence)-1]
		if int(p.SyncHeartbeats) < len(syncHeartbeatCadence) {
			interval = syncHeartbeatCadence[p.SyncHeartbeats]
		}
		if !p.LastSyncExchange.IsZero() && now.Sub(p.LastSyncExchange) < interval {
			return
		}
	}

	if e.ck0Attempts >= MaxCK0Attempts {
		s.reportError(MaxAttempts, nil)
		s.removeParticipant(p.ControlEndpoint.String())
		return
	}

	ts0 := uint64(s.clock.Now())
	e.pendingTS0 = ts0
	p.Synchronizing = true
	e.ck0Attempts++

	msg := wire.EncodeSync(wire.Sync{SSRC: s.localSSRC, Count: 0, TS0: ts0})
	s.sendTo(s.dataConn, p.DataEndpoint, msg)
}

// handleSync dispatches an inbound CK PDU by its Count field.
func (s *Session) handleSync(sync wire.Sync) {
	e, ok := s.participantBySSRC(sync.SSRC)
	if !ok {
		s.reportError(ParticipantNotFound, nil)
		return
	}
	p := e.p
	now := uint64(s.clock.Now())

	switch sync.Count {
	case 0:
		// We are B: respond with CK(1), stamping our local time as ts1.
		resp := wire.EncodeSync(wire.Sync{SSRC: s.localSSRC, Count: 1, TS0: sync.TS0, TS1: now})
		s.sendTo(s.dataConn, p.DataEndpoint, resp)
		p.LastSyncExchange = time.Now()
	case 1:
		// We are A: stamp ts2 and close the exchange with CK(2).
		resp := wire.EncodeSync(wire.Sync{SSRC: s.localSSRC, Count: 2, TS0: sync.TS0, TS1: sync.TS1, TS2: now})
		s.sendTo(s.dataConn, p.DataEndpoint, resp)
		p.Synchronizing = false
		p.LastSyncExchange = time.Now()
		p.SyncCount++
		e.ck0Attempts = 0
		advanceHeartbeatStage(p)
	case 2:
		// We are B: compute the offset estimate and close the exchange.
		p.OffsetEstimate = int64((sync.TS2+sync.TS0)/2) - int64(sync.TS1)
		p.LastSyncExchange = time.Now()
		p.SyncCount++
		advanceHeartbeatStage(p)
	}
}

func advanceHeartbeatStage(p *participant.Participant) {
	if int(p.SyncHeartbeats) < len(syncHeartbeatCadence)-1 {
		p.SyncHeartbeats++
	}
}

// checkListenerTimeout removes a Listener participant that has gone
// silent for CKMaxTimeout, emitting exactly one
// BY and one ListenerTimeOut.
func (s *Session) checkListenerTimeout(e *participantEntry, now time.Time) {
	p := e.p
	if p.Kind != participant.Listener || p.LastSyncExchange.IsZero() {
		return
	}
	if now.Sub(p.LastSyncExchange) < CKMaxTimeout {
		return
	}
	by := wire.EncodeEndSession(p.InitiatorToken, s.localSSRC)
	s.sendTo(s.controlConn, p.ControlEndpoint, by)
	s.removeParticipant(p.ControlEndpoint.String())
	s.reportError(ListenerTimeOut, nil)
}
