package session

import (
	"time"

	"github.com/go-rtpmidi/rtpmidi/internal/participant"
	"github.com/go-rtpmidi/rtpmidi/internal/wire"
)

// handleRTPMIDI decodes one data-port RTP-MIDI packet: the fixed RTP
// header, the flag byte, the command list, and (if present) the journal
// section. The packet's own ssrc resolves which participant it belongs
// to, since the sender's data-port source address need not match
// anything the table was keyed by.
func (s *Session) handleRTPMIDI(buf []byte) {
	hdr, err := wire.DecodeHeader(buf)
	if err != nil {
		s.reportError(Parse, err)
		return
	}
	e, ok := s.participantBySSRC(hdr.SSRC)
	if !ok {
		s.reportError(ParticipantNotFound, nil)
		return
	}
	p := e.p

	rest := buf[wire.RTPHeaderLen:]
	flags, n, err := wire.DecodeFlags(rest)
	if err != nil {
		s.reportError(Parse, err)
		return
	}
	rest = rest[n:]
	if len(rest) < flags.CommandListLen {
		s.reportError(UnexpectedParse, nil)
		return
	}
	cmdList := rest[:flags.CommandListLen]
	// The journal section, if J=1, trails the command list; this decoder
	// only needs to recover the command list, so the journal bytes are
	// not parsed on receive.

	if lost := p.ObserveSeq(hdr.SequenceNumber); lost > 0 {
		s.reportError(ReceivedPacketsDropped, nil)
	}
	if !p.ReceiverFeedbackPending {
		p.ReceiverFeedbackPending = true
		p.ReceiverFeedbackStart = time.Now()
	}

	events, _, err := e.decoder.DecodeCommandList(cmdList, len(cmdList), flags.HasDeltaTimeOnFirstCommand)
	if err != nil {
		s.reportError(Parse, err)
		return
	}

	if s.opts.OnMIDI == nil {
		return
	}
	deviceID := p.DeviceID(s.opts.ListenPort)
	for _, ev := range events {
		s.opts.OnMIDI(deviceID, ev)
	}
}

// flushReceiverFeedback emits an RS once receiverFeedbackThreshold has
// elapsed since the oldest unacknowledged inbound packet.
func (s *Session) flushReceiverFeedback(e *participantEntry, now time.Time) {
	p := e.p
	if p.InviteState != participant.Connected {
		return
	}
	if !p.ReceiverFeedbackPending {
		return
	}
	if now.Sub(p.ReceiverFeedbackStart) < receiverFeedbackThreshold {
		return
	}
	fb := wire.EncodeFeedback(wire.Feedback{SSRC: s.localSSRC, SequenceNumber: p.RecvSeq})
	s.sendTo(s.dataConn, p.DataEndpoint, fb)
	p.ReceiverFeedbackPending = false
}

// handleFeedbackPDU processes an inbound RS, reporting SendPacketsDropped
// whenever the peer's acknowledged sequence number lags the last one we
// sent by one packet or more.
func (s *Session) handleFeedbackPDU(fb wire.Feedback) {
	e, ok := s.participantBySSRC(fb.SSRC)
	if !ok {
		s.reportError(ParticipantNotFound, nil)
		return
	}
	p := e.p
	lastSent := p.SendSeq - 1
	gap := int16(lastSent - fb.SequenceNumber)
	if gap > 0 {
		s.reportError(SendPacketsDropped, nil)
	}
}
