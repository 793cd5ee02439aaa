package session

import (
	"errors"

	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
	"github.com/go-rtpmidi/rtpmidi/internal/participant"
	"github.com/go-rtpmidi/rtpmidi/internal/wire"
)

// ErrUnknownDevice is returned by the Send* helpers when deviceID does
// not name a participant currently in the table.
var ErrUnknownDevice = errors.New("session: unknown device id")

// entryByDeviceID resolves a public device ID back to its
// participantEntry. The table is small (MaxParticipants) so a linear scan
// under the lock is simpler than maintaining a third index.
func (s *Session) entryByDeviceID(deviceID string) *participantEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.table {
		if e.p.DeviceID(s.opts.ListenPort) == deviceID {
			return e
		}
	}
	return nil
}

// enqueue encodes ev and appends it to deviceID's outbound buffer, to be
// framed into an RTP-MIDI packet on the next Tick. Every command after
// the first queued since the last flush is preceded by a zero
// delta-time separator, so flushOutbound's fixed
// HasDeltaTimeOnFirstCommand: false stays correct for the first command
// while the decoder still finds a delta-time ahead of every later one.
// When JournalEnabled, the event also folds into that participant's
// recovery journal so a later RS-detected gap can be made up.
func (s *Session) enqueue(deviceID string, channel byte, channelEvent bool, ev midicmd.Event) error {
	e := s.entryByDeviceID(deviceID)
	if e == nil {
		s.reportError(ParticipantNotFound, nil)
		return ErrUnknownDevice
	}

	buf := midicmd.Encode(ev)
	if e.p.HasPendingOutbound() {
		buf = append([]byte{0x00}, buf...)
	}
	if err := e.p.PushOutbound(buf); err != nil {
		s.reportError(BufferFull, err)
		return err
	}
	if s.opts.JournalEnabled {
		if channelEvent {
			e.journal.RecordChannel(channel, ev)
		} else {
			e.journal.RecordSystem(ev)
		}
	}
	return nil
}

// flushOutbound frames one RTP-MIDI packet from deviceID's pending
// outbound MIDI bytes and sends it, including a recovery
// journal section when the session was constructed with JournalEnabled.
func (s *Session) flushOutbound(e *participantEntry) {
	p := e.p
	if p.InviteState != participant.Connected {
		return
	}
	data := p.DrainOutbound()
	if len(data) == 0 {
		return
	}

	seq := p.NextSendSeq()
	ts := s.clock.Timestamp32()
	hdr := wire.EncodeHeader(wire.Header{SequenceNumber: seq, Timestamp: ts, SSRC: s.localSSRC})

	var journalBytes []byte
	if s.opts.JournalEnabled {
		e.journal.SetCheckpoint(seq)
		journalBytes = e.journal.DrainJournal()
	}

	flagBytes := wire.EncodeFlags(wire.Flags{
		HasDeltaTimeOnFirstCommand: false,
		HasJournal:                 s.opts.JournalEnabled,
		CommandListLen:             len(data),
	})

	packet := make([]byte, 0, len(hdr)+len(flagBytes)+len(data)+len(journalBytes))
	packet = append(packet, hdr...)
	packet = append(packet, flagBytes...)
	packet = append(packet, data...)
	packet = append(packet, journalBytes...)

	s.sendTo(s.dataConn, p.DataEndpoint, packet)
}

// The Send* methods are the public MIDI output surface: one method per
// command type, addressed by device ID, non-blocking (the packet
// itself goes out on the next Tick).

func (s *Session) SendNoteOn(deviceID string, channel uint8, note, velocity byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewNoteOn(channel, note, velocity))
}

func (s *Session) SendNoteOff(deviceID string, channel uint8, note, velocity byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewNoteOff(channel, note, velocity))
}

func (s *Session) SendPolyAftertouch(deviceID string, channel uint8, note, pressure byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewPolyAftertouch(channel, note, pressure))
}

func (s *Session) SendControlChange(deviceID string, channel uint8, controller, value byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewControlChange(channel, controller, value))
}

func (s *Session) SendProgramChange(deviceID string, channel uint8, program byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewProgramChange(channel, program))
}

func (s *Session) SendChannelAftertouch(deviceID string, channel uint8, pressure byte) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewChannelAftertouch(channel, pressure))
}

func (s *Session) SendPitchWheel(deviceID string, channel uint8, amount uint16) error {
	return s.enqueue(deviceID, channel&0x0F, true, midicmd.NewPitchWheel(channel, amount))
}

func (s *Session) SendSystemExclusive(deviceID string, data []byte) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewSystemExclusive(data))
}

func (s *Session) SendTimeCodeQuarterFrame(deviceID string, value byte) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewTimeCodeQuarterFrame(value))
}

func (s *Session) SendSongSelect(deviceID string, song byte) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewSongSelect(song))
}

func (s *Session) SendSongPositionPointer(deviceID string, position uint16) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewSongPositionPointer(position))
}

func (s *Session) SendTuneRequest(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewTuneRequest())
}

func (s *Session) SendTimingClock(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewTimingClock())
}

func (s *Session) SendStart(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewStart())
}

func (s *Session) SendContinue(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewContinue())
}

func (s *Session) SendStop(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewStop())
}

func (s *Session) SendActiveSensing(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewActiveSensing())
}

func (s *Session) SendReset(deviceID string) error {
	return s.enqueue(deviceID, 0, false, midicmd.NewReset())
}
