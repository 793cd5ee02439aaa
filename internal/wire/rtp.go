package wire

import (
	"encoding/binary"
	"fmt"
)

// PayloadType is the fixed RTP payload type for RTP-MIDI.
const PayloadType = 97

// RTPHeaderLen is the fixed 12-byte RTP header length (no CSRC list, no
// extension — AppleMIDI never sets them).
const RTPHeaderLen = 12

// Header is the fixed 12-byte RTP header fields AppleMIDI actually uses.
type Header struct {
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// DecodeHeader parses the 12-byte RTP header from the front of buf. It
// returns ErrUnexpectedData if the version is not 2 or the payload type is
// not 97, and ErrNotEnoughData if buf is shorter than RTPHeaderLen.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < RTPHeaderLen {
		return Header{}, ErrNotEnoughData
	}
	versionAndFlags := buf[0]
	version := versionAndFlags >> 6
	if version != 2 {
		return Header{}, fmt.Errorf("wire: %w: RTP version %d", ErrUnexpectedData, version)
	}
	payloadType := buf[1] & 0x7F
	if payloadType != PayloadType {
		return Header{}, fmt.Errorf("wire: %w: RTP payload type %d", ErrUnexpectedData, payloadType)
	}
	return Header{
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// EncodeHeader serializes the fixed 12-byte RTP header: V=2, P=0, X=0,
// CC=0, M=0, PT=97.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, RTPHeaderLen)
	buf[0] = 2 << 6 // V=2, P=0, X=0, CC=0
	buf[1] = PayloadType // M=0, PT=97
	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)
	return buf
}

// Flags is the decoded form of the RTP-MIDI flag byte (and its optional
// length-extension byte) that immediately follows the RTP header.
type Flags struct {
	// HasDeltaTimeOnFirstCommand is Z: the first command in the list is
	// preceded by a delta-time.
	HasDeltaTimeOnFirstCommand bool
	// HasJournal is J: a recovery journal section follows the command list.
	HasJournal bool
	// CommandListLen is the total byte length of the command-list section.
	CommandListLen int
}

// DecodeFlags parses the flag byte (and its optional extension byte) at the
// front of buf, returning the decoded Flags and the number of bytes the
// flag encoding itself occupied (1 or 2).
func DecodeFlags(buf []byte) (Flags, int, error) {
	if len(buf) < 1 {
		return Flags{}, 0, ErrNotEnoughData
	}
	b := buf[0]
	long := b&0x80 != 0
	j := b&0x40 != 0
	z := b&0x20 != 0
	short := int(b & 0x0F)

	if !long {
		return Flags{HasDeltaTimeOnFirstCommand: z, HasJournal: j, CommandListLen: short}, 1, nil
	}
	if len(buf) < 2 {
		return Flags{}, 0, ErrNotEnoughData
	}
	total := (short << 8) | int(buf[1])
	return Flags{HasDeltaTimeOnFirstCommand: z, HasJournal: j, CommandListLen: total}, 2, nil
}

// EncodeFlags serializes the flag byte (and extension byte if needed).
// A command-list length under 15 bytes uses the short (1-byte) form;
// 15 or more uses the long (2-byte, B=1) form.
func EncodeFlags(f Flags) []byte {
	if f.CommandListLen < 15 {
		b := byte(f.CommandListLen & 0x0F)
		if f.HasJournal {
			b |= 0x40
		}
		if f.HasDeltaTimeOnFirstCommand {
			b |= 0x20
		}
		return []byte{b}
	}
	b := byte(0x80) | byte((f.CommandListLen>>8)&0x0F)
	if f.HasJournal {
		b |= 0x40
	}
	if f.HasDeltaTimeOnFirstCommand {
		b |= 0x20
	}
	return []byte{b, byte(f.CommandListLen & 0xFF)}
}
