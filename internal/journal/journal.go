// Package journal implements the optional RTP-MIDI recovery journal:
// per-channel and system chapters encoding only the deltas since the
// peer's last acknowledged checkpoint, so a receiver that detects a
// sequence gap can reconstruct the events it missed.
//
// A conforming implementation MAY emit empty journals; this package is
// wired into the session's outbound flush path only when a Session is
// constructed with JournalEnabled true.
package journal

import (
	"encoding/binary"
	"errors"
)

// ErrNotEnoughData is returned by decoders when buf is shorter than a
// length field claims.
var ErrNotEnoughData = errors.New("journal: not enough data")

// Header is the 3-byte recovery journal header: `S|Y|A|H | TOTCHAN(4)`
// packed into one byte, followed by a big-endian 16-bit checkpoint_seq.
type Header struct {
	SystemJournalPresent  bool // Y
	ChannelJournalPresent bool // A
	TotalChannels         int  // actual channel-entry count; wire value is TotalChannels-1
	CheckpointSeq         uint16
}

// EncodeHeader serializes h. When ChannelJournalPresent is false,
// TotalChannels is not written to the wire (TOTCHAN is meaningless
// without A=1) and encodes as 0.
func EncodeHeader(h Header) []byte {
	var flags byte
	if h.SystemJournalPresent {
		flags |= 0x40 // Y
	}
	if h.ChannelJournalPresent {
		flags |= 0x20 // A
	}
	totchan := 0
	if h.ChannelJournalPresent && h.TotalChannels > 0 {
		totchan = h.TotalChannels - 1
	}
	flags |= byte(totchan) & 0x0F

	buf := make([]byte, 3)
	buf[0] = flags
	binary.BigEndian.PutUint16(buf[1:3], h.CheckpointSeq)
	return buf
}

// DecodeHeader parses a Header and returns the number of bytes consumed
// (always 3 on success).
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) < 3 {
		return Header{}, 0, ErrNotEnoughData
	}
	flags := buf[0]
	h := Header{
		SystemJournalPresent:  flags&0x40 != 0,
		ChannelJournalPresent: flags&0x20 != 0,
		CheckpointSeq:         binary.BigEndian.Uint16(buf[1:3]),
	}
	if h.ChannelJournalPresent {
		h.TotalChannels = int(flags&0x0F) + 1
	}
	return h, 3, nil
}

// Empty returns the wire bytes for a disabled journal: header with
// Y=0, A=0, zero channels.
func Empty(checkpointSeq uint16) []byte {
	return EncodeHeader(Header{CheckpointSeq: checkpointSeq})
}

// chapter presence bits within a per-channel flags byte, in order:
// P, C, W, N, T, A.
const (
	chapterP = 1 << 5
	chapterC = 1 << 4
	chapterW = 1 << 3
	chapterN = 1 << 2
	chapterT = 1 << 1
	chapterA = 1 << 0
)

// NoteEntry records one note-on (with velocity) or note-off observed
// since the channel's last checkpoint, for the N chapter.
type NoteEntry struct {
	Note     byte
	On       bool
	Velocity byte
}

// ChannelChapter holds the accumulated per-channel delta state that the
// journal's channel entries summarize.
type ChannelChapter struct {
	Program        *byte          // P: last program change
	Bank           *uint16        // P: last bank select (MSB<<7|LSB), if seen
	ControlChanges map[byte]byte  // C: controller -> last value
	PitchWheel     *uint16        // W: last 14-bit pitch wheel value
	Notes          []NoteEntry    // N: ordered note-on/off log since checkpoint
	Aftertouch     *byte          // T: last channel aftertouch value
	PolyAftertouch map[byte]byte  // A: note -> last poly aftertouch value
}

// EncodeChannelEntry serializes one channel's journal entry: a flags
// byte naming which chapters are present, followed by each present
// chapter as a big-endian u16 length prefix and its payload.
func EncodeChannelEntry(ch ChannelChapter) []byte {
	var flags byte
	var body []byte

	if ch.Program != nil {
		flags |= chapterP
		payload := []byte{*ch.Program}
		if ch.Bank != nil {
			payload = append(payload, byte(*ch.Bank>>8), byte(*ch.Bank))
		}
		body = appendChapter(body, payload)
	}
	if len(ch.ControlChanges) > 0 {
		flags |= chapterC
		payload := make([]byte, 0, len(ch.ControlChanges)*2)
		for controller := byte(0); controller < 128; controller++ {
			if v, ok := ch.ControlChanges[controller]; ok {
				payload = append(payload, controller&0x7F, v&0x7F)
			}
		}
		body = appendChapter(body, payload)
	}
	if ch.PitchWheel != nil {
		flags |= chapterW
		v := *ch.PitchWheel
		body = appendChapter(body, []byte{byte(v & 0x7F), byte((v >> 7) & 0x7F)})
	}
	if len(ch.Notes) > 0 {
		flags |= chapterN
		payload := make([]byte, 0, len(ch.Notes)*3)
		for _, n := range ch.Notes {
			onByte := byte(0)
			if n.On {
				onByte = 1
			}
			payload = append(payload, n.Note&0x7F, onByte, n.Velocity&0x7F)
		}
		body = appendChapter(body, payload)
	}
	if ch.Aftertouch != nil {
		flags |= chapterT
		body = appendChapter(body, []byte{*ch.Aftertouch & 0x7F})
	}
	if len(ch.PolyAftertouch) > 0 {
		flags |= chapterA
		payload := make([]byte, 0, len(ch.PolyAftertouch)*2)
		for note := byte(0); note < 128; note++ {
			if v, ok := ch.PolyAftertouch[note]; ok {
				payload = append(payload, note&0x7F, v&0x7F)
			}
		}
		body = appendChapter(body, payload)
	}

	return append([]byte{flags}, body...)
}

func appendChapter(body, payload []byte) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(payload)))
	body = append(body, lenBuf...)
	body = append(body, payload...)
	return body
}

// DecodeChannelEntry parses one channel journal entry and returns the
// number of bytes consumed. Chapters are parsed for their content; a
// conforming decoder MAY instead skip chapters using their length
// fields, but this implementation always decodes them since the
// content is needed for state recovery.
func DecodeChannelEntry(buf []byte) (ChannelChapter, int, error) {
	if len(buf) < 1 {
		return ChannelChapter{}, 0, ErrNotEnoughData
	}
	flags := buf[0]
	pos := 1
	var ch ChannelChapter

	readChapter := func() ([]byte, error) {
		if pos+2 > len(buf) {
			return nil, ErrNotEnoughData
		}
		n := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		if pos+n > len(buf) {
			return nil, ErrNotEnoughData
		}
		payload := buf[pos : pos+n]
		pos += n
		return payload, nil
	}

	if flags&chapterP != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		if len(payload) >= 1 {
			v := payload[0]
			ch.Program = &v
		}
		if len(payload) >= 3 {
			bank := uint16(payload[1])<<8 | uint16(payload[2])
			ch.Bank = &bank
		}
	}
	if flags&chapterC != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		ch.ControlChanges = make(map[byte]byte, len(payload)/2)
		for i := 0; i+1 < len(payload); i += 2 {
			ch.ControlChanges[payload[i]] = payload[i+1]
		}
	}
	if flags&chapterW != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		if len(payload) >= 2 {
			v := uint16(payload[0]) | uint16(payload[1])<<7
			ch.PitchWheel = &v
		}
	}
	if flags&chapterN != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		for i := 0; i+3 <= len(payload); i += 3 {
			ch.Notes = append(ch.Notes, NoteEntry{
				Note:     payload[i],
				On:       payload[i+1] == 1,
				Velocity: payload[i+2],
			})
		}
	}
	if flags&chapterT != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		if len(payload) >= 1 {
			v := payload[0]
			ch.Aftertouch = &v
		}
	}
	if flags&chapterA != 0 {
		payload, err := readChapter()
		if err != nil {
			return ch, 0, err
		}
		ch.PolyAftertouch = make(map[byte]byte, len(payload)/2)
		for i := 0; i+1 < len(payload); i += 2 {
			ch.PolyAftertouch[payload[i]] = payload[i+1]
		}
	}

	return ch, pos, nil
}

// SystemChapter holds the system-level journal chapters:
// D (simple commands: reset/tune-request/song-select counters), V
// (active-sense counter), Q (sequencer state: song position + run/stop).
type SystemChapter struct {
	ResetCount       *uint16 // D
	TuneRequestCount *uint16 // D
	LastSongSelect   *byte   // D
	ActiveSenseCount *uint16 // V
	SongPosition     *uint16 // Q
	SequencerRunning *bool   // Q
}

const (
	sysChapterD = 1 << 2
	sysChapterV = 1 << 1
	sysChapterQ = 1 << 0
)

// EncodeSystemChapter serializes the system journal section.
func EncodeSystemChapter(s SystemChapter) []byte {
	var flags byte
	var body []byte

	if s.ResetCount != nil || s.TuneRequestCount != nil || s.LastSongSelect != nil {
		flags |= sysChapterD
		var reset, tune uint16
		var song byte
		if s.ResetCount != nil {
			reset = *s.ResetCount
		}
		if s.TuneRequestCount != nil {
			tune = *s.TuneRequestCount
		}
		if s.LastSongSelect != nil {
			song = *s.LastSongSelect
		}
		payload := make([]byte, 5)
		binary.BigEndian.PutUint16(payload[0:2], reset)
		binary.BigEndian.PutUint16(payload[2:4], tune)
		payload[4] = song & 0x7F
		body = appendChapter(body, payload)
	}
	if s.ActiveSenseCount != nil {
		flags |= sysChapterV
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, *s.ActiveSenseCount)
		body = appendChapter(body, payload)
	}
	if s.SongPosition != nil || s.SequencerRunning != nil {
		flags |= sysChapterQ
		var pos uint16
		var running bool
		if s.SongPosition != nil {
			pos = *s.SongPosition
		}
		if s.SequencerRunning != nil {
			running = *s.SequencerRunning
		}
		runByte := byte(0)
		if running {
			runByte = 1
		}
		payload := []byte{byte(pos & 0x7F), byte((pos >> 7) & 0x7F), runByte}
		body = appendChapter(body, payload)
	}

	return append([]byte{flags}, body...)
}

// DecodeSystemChapter parses the system journal section and returns the
// number of bytes consumed.
func DecodeSystemChapter(buf []byte) (SystemChapter, int, error) {
	if len(buf) < 1 {
		return SystemChapter{}, 0, ErrNotEnoughData
	}
	flags := buf[0]
	pos := 1
	var s SystemChapter

	readChapter := func() ([]byte, error) {
		if pos+2 > len(buf) {
			return nil, ErrNotEnoughData
		}
		n := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		if pos+n > len(buf) {
			return nil, ErrNotEnoughData
		}
		payload := buf[pos : pos+n]
		pos += n
		return payload, nil
	}

	if flags&sysChapterD != 0 {
		payload, err := readChapter()
		if err != nil {
			return s, 0, err
		}
		if len(payload) >= 5 {
			reset := binary.BigEndian.Uint16(payload[0:2])
			tune := binary.BigEndian.Uint16(payload[2:4])
			song := payload[4]
			s.ResetCount = &reset
			s.TuneRequestCount = &tune
			s.LastSongSelect = &song
		}
	}
	if flags&sysChapterV != 0 {
		payload, err := readChapter()
		if err != nil {
			return s, 0, err
		}
		if len(payload) >= 2 {
			v := binary.BigEndian.Uint16(payload)
			s.ActiveSenseCount = &v
		}
	}
	if flags&sysChapterQ != 0 {
		payload, err := readChapter()
		if err != nil {
			return s, 0, err
		}
		if len(payload) >= 3 {
			pos16 := uint16(payload[0]) | uint16(payload[1])<<7
			running := payload[2] == 1
			s.SongPosition = &pos16
			s.SequencerRunning = &running
		}
	}

	return s, pos, nil
}
