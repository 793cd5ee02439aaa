package midicmd

import "fmt"

// Decoder holds the state that must persist across packets for a single
// participant's inbound stream: the running status byte and whether a
// SysEx begun in an earlier packet is still open. This implementation
// folds "midi_remaining" into the command loop itself since Go slices
// already carry their own length.
type Decoder struct {
	runningStatus byte // 0 means "none set"
	sysexOpen     bool // a SysEx begun in a prior packet has not yet seen F7
}

// NewDecoder returns a Decoder with no running status and no open SysEx.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset clears all decoder state, as when a participant is recreated.
func (d *Decoder) Reset() {
	d.runningStatus = 0
	d.sysexOpen = false
}

// DecodeCommandList decodes the command-list section of one RTP-MIDI
// packet. buf must contain at least totalLen bytes; only the first
// totalLen bytes are consumed. firstHasDeltaTime corresponds to the flag
// byte's Z bit: whether the first command in the list is preceded by a
// delta-time. It returns the decoded events in wire order and, if the
// packet ended in the middle of an unterminated SysEx, split=true. The
// Decoder remembers this and will treat the next call's leading bytes
// as a SysEx continuation.
func (d *Decoder) DecodeCommandList(buf []byte, totalLen int, firstHasDeltaTime bool) (events []Event, split bool, err error) {
	if len(buf) < totalLen {
		return nil, false, ErrNotEnoughData
	}
	pos := 0
	first := true

	for pos < totalLen {
		if d.sysexOpen {
			data, n, complete := scanSysEx(buf[pos:totalLen])
			pos += n
			d.sysexOpen = !complete
			events = append(events, Event{
				Type:         SystemExclusive,
				SysEx:        data,
				Complete:     complete,
				Continuation: true,
			})
			first = false
			if !complete {
				return events, true, nil
			}
			continue
		}

		if first && !firstHasDeltaTime {
			// no delta-time on the first command.
		} else {
			_, n, derr := DecodeDeltaTime(buf[pos:totalLen])
			if derr != nil {
				return events, false, fmt.Errorf("midicmd: decoding delta-time: %w", derr)
			}
			pos += n
		}
		first = false

		if pos >= totalLen {
			return events, false, ErrNotEnoughData
		}

		b := buf[pos]

		if b == 0xF0 {
			pos++
			data, n, complete := scanSysEx(buf[pos:totalLen])
			pos += n
			d.sysexOpen = !complete
			if complete {
				d.runningStatus = 0
			}
			events = append(events, Event{
				Type:     SystemExclusive,
				SysEx:    data,
				Complete: complete,
			})
			if !complete {
				return events, true, nil
			}
			continue
		}

		var status byte
		if b&0x80 != 0 {
			status = b
			pos++
			switch {
			case status >= 0x80 && status <= 0xEF:
				d.runningStatus = status
			case status >= 0xF0 && status <= 0xF7:
				d.runningStatus = 0
			// 0xF8-0xFF (realtime) leaves running status untouched.
			}
		} else {
			if d.runningStatus == 0 {
				return events, false, fmt.Errorf("midicmd: data byte 0x%02X with no running status", b)
			}
			status = d.runningStatus
			// b is itself the first data byte; do not advance pos past it
			// here, the data-byte loop below will consume it.
		}

		n := dataByteCount(status)
		if n < 0 {
			// Reserved/unrecognized status (stray F4/F5/F7 outside SysEx).
			// Discard the byte and resume scanning.
			continue
		}

		if pos+n > totalLen {
			return events, false, ErrNotEnoughData
		}
		data := make([]byte, n)
		for i := 0; i < n; i++ {
			data[i] = buf[pos+i] & 0x7F
		}
		pos += n

		typ := typeForStatus(status)
		ev := Event{Type: typ}
		if status < 0xF0 {
			ev.Channel = status & 0x0F
		}
		if n > 0 {
			ev.Data1 = data[0]
		}
		if n > 1 {
			ev.Data2 = data[1]
		}
		events = append(events, ev)
	}

	return events, false, nil
}

// scanSysEx scans buf for the end of a SysEx run: either a terminating
// 0xF7 (complete) or a nested 0xF0 signalling the sender never
// terminated the previous one (also treated as a split boundary). If
// neither appears before buf is exhausted, the run is incomplete and
// the caller is responsible for carrying the open state to the next
// packet.
func scanSysEx(buf []byte) (data []byte, consumed int, complete bool) {
	for i, b := range buf {
		if b == 0xF7 {
			return buf[:i], i + 1, true
		}
		if b == 0xF0 {
			return buf[:i], i, false
		}
	}
	return buf, len(buf), false
}

// Encode serializes ev's status byte and data bytes (no delta-time) in
// explicit form — this encoder never uses running status, which keeps
// every emitted packet self-describing. A SysEx is emitted whole, wrapped
// in F0 ... F7; it is never segmented.
func Encode(ev Event) []byte {
	switch ev.Type {
	case SystemExclusive:
		buf := make([]byte, 0, len(ev.SysEx)+2)
		buf = append(buf, 0xF0)
		buf = append(buf, ev.SysEx...)
		buf = append(buf, 0xF7)
		return buf
	case NoteOff:
		return []byte{0x80 | (ev.Channel & 0x0F), ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case NoteOn:
		return []byte{0x90 | (ev.Channel & 0x0F), ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case PolyAftertouch:
		return []byte{0xA0 | (ev.Channel & 0x0F), ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case ControlChange:
		return []byte{0xB0 | (ev.Channel & 0x0F), ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case ProgramChange:
		return []byte{0xC0 | (ev.Channel & 0x0F), ev.Data1 & 0x7F}
	case ChannelAftertouch:
		return []byte{0xD0 | (ev.Channel & 0x0F), ev.Data1 & 0x7F}
	case PitchBend:
		return []byte{0xE0 | (ev.Channel & 0x0F), ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case TimeCodeQuarterFrame:
		return []byte{0xF1, ev.Data1 & 0x7F}
	case SongPositionPointer:
		return []byte{0xF2, ev.Data1 & 0x7F, ev.Data2 & 0x7F}
	case SongSelect:
		return []byte{0xF3, ev.Data1 & 0x7F}
	case TuneRequest:
		return []byte{0xF6}
	case TimingClock:
		return []byte{0xF8}
	case Start:
		return []byte{0xFA}
	case Continue:
		return []byte{0xFB}
	case Stop:
		return []byte{0xFC}
	case ActiveSensing:
		return []byte{0xFE}
	case Reset:
		return []byte{0xFF}
	default:
		return nil
	}
}

// PitchBendValue packs a 14-bit pitch bend amount (0..16383) into an
// Event's Data1 (LSB) / Data2 (MSB).
func PitchBendValue(channel uint8, amount uint16) Event {
	return Event{
		Type:    PitchBend,
		Channel: channel,
		Data1:   byte(amount & 0x7F),
		Data2:   byte((amount >> 7) & 0x7F),
	}
}

// PitchBendAmount reconstructs the 14-bit amount from a decoded PitchBend
// event's data bytes.
func PitchBendAmount(ev Event) uint16 {
	return uint16(ev.Data1&0x7F) | uint16(ev.Data2&0x7F)<<7
}

// SongPositionValue packs a 14-bit song position (0..16383) into an Event.
func SongPositionValue(position uint16) Event {
	return Event{
		Type:  SongPositionPointer,
		Data1: byte(position & 0x7F),
		Data2: byte((position >> 7) & 0x7F),
	}
}

// SongPositionAmount reconstructs the 14-bit position from a decoded event.
func SongPositionAmount(ev Event) uint16 {
	return uint16(ev.Data1&0x7F) | uint16(ev.Data2&0x7F)<<7
}

// The New* constructors build Events for the Send* helpers. Channel and
// data bytes are masked the same way whether the event travels the wire
// or is merely constructed in memory, so callers never need to mask
// themselves.

func NewNoteOff(channel uint8, note, velocity byte) Event {
	return Event{Type: NoteOff, Channel: channel & 0x0F, Data1: note & 0x7F, Data2: velocity & 0x7F}
}

func NewNoteOn(channel uint8, note, velocity byte) Event {
	return Event{Type: NoteOn, Channel: channel & 0x0F, Data1: note & 0x7F, Data2: velocity & 0x7F}
}

func NewPolyAftertouch(channel uint8, note, pressure byte) Event {
	return Event{Type: PolyAftertouch, Channel: channel & 0x0F, Data1: note & 0x7F, Data2: pressure & 0x7F}
}

func NewControlChange(channel uint8, controller, value byte) Event {
	return Event{Type: ControlChange, Channel: channel & 0x0F, Data1: controller & 0x7F, Data2: value & 0x7F}
}

func NewProgramChange(channel uint8, program byte) Event {
	return Event{Type: ProgramChange, Channel: channel & 0x0F, Data1: program & 0x7F}
}

func NewChannelAftertouch(channel uint8, pressure byte) Event {
	return Event{Type: ChannelAftertouch, Channel: channel & 0x0F, Data1: pressure & 0x7F}
}

func NewPitchWheel(channel uint8, amount uint16) Event {
	return PitchBendValue(channel, amount)
}

func NewSystemExclusive(data []byte) Event {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Event{Type: SystemExclusive, SysEx: buf, Complete: true}
}

func NewTimeCodeQuarterFrame(value byte) Event {
	return Event{Type: TimeCodeQuarterFrame, Data1: value & 0x7F}
}

func NewSongSelect(song byte) Event {
	return Event{Type: SongSelect, Data1: song & 0x7F}
}

func NewSongPositionPointer(position uint16) Event {
	return SongPositionValue(position)
}

func NewTuneRequest() Event      { return Event{Type: TuneRequest} }
func NewTimingClock() Event      { return Event{Type: TimingClock} }
func NewStart() Event            { return Event{Type: Start} }
func NewContinue() Event         { return Event{Type: Continue} }
func NewStop() Event             { return Event{Type: Stop} }
func NewActiveSensing() Event    { return Event{Type: ActiveSensing} }
func NewReset() Event            { return Event{Type: Reset} }
