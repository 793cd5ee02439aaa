// Package wire implements the byte-exact AppleMIDI control PDU codec and
// the RTP header / RTP-MIDI flag byte framing used on the data port.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion is the only AppleMIDI protocol version this codec speaks.
const ProtocolVersion = 2

// signature is the two bytes that open every AppleMIDI control PDU.
var signature = [2]byte{0xFF, 0xFF}

// Command identifies an AppleMIDI control PDU by its two-byte ASCII tag.
type Command string

const (
	CommandInvitation          Command = "IN"
	CommandInvitationAccepted  Command = "OK"
	CommandInvitationRejected  Command = "NO"
	CommandEndSession          Command = "BY"
	CommandSynchronization     Command = "CK"
	CommandReceiverFeedback    Command = "RS"
	CommandBitrateReceiveLimit Command = "RL"
)

// minLen gives the minimum well-formed PDU length per command.
var minLen = map[Command]int{
	CommandInvitation:          16,
	CommandInvitationAccepted:  16,
	CommandInvitationRejected:  16,
	CommandEndSession:          16,
	CommandSynchronization:     36,
	CommandReceiverFeedback:    12,
	CommandBitrateReceiveLimit: 12,
}

// Errors returned by Decode. ErrNotEnoughData and ErrUnexpectedData map
// directly to NotEnoughData / NotSureGiveMeMoreData and
// UnexpectedData parse statuses; a caller should retain the buffer on
// ErrNotEnoughData and discard one byte and retry on ErrUnexpectedData.
var (
	ErrNotEnoughData    = errors.New("wire: not enough data for a control PDU")
	ErrUnexpectedData   = errors.New("wire: signature mismatch or unexpected data")
	ErrProtocolMismatch = errors.New("wire: protocol version mismatch")
)

// Invitation carries the shared payload of IN, OK, NO and BY PDUs.
// BY does not carry a Name; callers should ignore Name for that command.
type Invitation struct {
	Cmd            Command
	InitiatorToken uint32
	SSRC           uint32
	Name           string
}

// Sync carries a CK (clock synchronization) PDU's payload.
type Sync struct {
	SSRC  uint32
	Count uint8
	TS0   uint64
	TS1   uint64
	TS2   uint64
}

// Feedback carries an RS (receiver feedback) PDU's payload.
type Feedback struct {
	SSRC           uint32
	SequenceNumber uint16
}

// BitrateLimit carries an RL PDU's payload. Any action on receipt is
// left to the caller; this codec only parses and emits it.
type BitrateLimit struct {
	SSRC  uint32
	Limit uint32
}

// PeekCommand inspects buf for the AppleMIDI signature and returns the
// command tag without consuming anything. It returns ErrNotEnoughData if
// fewer than 4 bytes are available and ErrUnexpectedData if the
// signature does not match.
func PeekCommand(buf []byte) (Command, error) {
	if len(buf) < 4 {
		return "", ErrNotEnoughData
	}
	if buf[0] != signature[0] || buf[1] != signature[1] {
		return "", ErrUnexpectedData
	}
	return Command(buf[2:4]), nil
}

// DecodeInvitation decodes an IN, OK, NO or BY PDU. It returns the number of
// bytes consumed from buf: exactly 16 + len(Name) for IN/OK/NO, where the
// name runs to the end of the slice, and exactly 16 for BY.
func DecodeInvitation(buf []byte) (Invitation, int, error) {
	cmd, err := PeekCommand(buf)
	if err != nil {
		return Invitation{}, 0, err
	}
	if cmd != CommandInvitation && cmd != CommandInvitationAccepted &&
		cmd != CommandInvitationRejected && cmd != CommandEndSession {
		return Invitation{}, 0, fmt.Errorf("wire: %w: not an invitation-family command %q", ErrUnexpectedData, cmd)
	}
	min := minLen[cmd]
	if len(buf) < min {
		return Invitation{}, 0, ErrNotEnoughData
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != ProtocolVersion {
		return Invitation{}, 0, ErrProtocolMismatch
	}
	inv := Invitation{
		Cmd:            cmd,
		InitiatorToken: binary.BigEndian.Uint32(buf[8:12]),
		SSRC:           binary.BigEndian.Uint32(buf[12:16]),
	}
	consumed := min
	if cmd != CommandEndSession && len(buf) > min {
		inv.Name = string(buf[min:])
		consumed = len(buf)
	}
	return inv, consumed, nil
}

// EncodeInvitation serializes an IN, OK or NO PDU.
func EncodeInvitation(cmd Command, token, ssrc uint32, name string) []byte {
	buf := make([]byte, 16+len(name))
	putHeader(buf, cmd, token, ssrc)
	copy(buf[16:], name)
	return buf
}

// EncodeEndSession serializes a BY PDU.
func EncodeEndSession(token, ssrc uint32) []byte {
	buf := make([]byte, 16)
	putHeader(buf, CommandEndSession, token, ssrc)
	return buf
}

func putHeader(buf []byte, cmd Command, token, ssrc uint32) {
	buf[0], buf[1] = signature[0], signature[1]
	buf[2], buf[3] = cmd[0], cmd[1]
	binary.BigEndian.PutUint32(buf[4:8], ProtocolVersion)
	binary.BigEndian.PutUint32(buf[8:12], token)
	binary.BigEndian.PutUint32(buf[12:16], ssrc)
}

// DecodeSync decodes a CK PDU, consuming exactly 36 bytes.
func DecodeSync(buf []byte) (Sync, int, error) {
	cmd, err := PeekCommand(buf)
	if err != nil {
		return Sync{}, 0, err
	}
	if cmd != CommandSynchronization {
		return Sync{}, 0, fmt.Errorf("wire: %w: not CK", ErrUnexpectedData)
	}
	if len(buf) < minLen[cmd] {
		return Sync{}, 0, ErrNotEnoughData
	}
	s := Sync{
		SSRC:  binary.BigEndian.Uint32(buf[4:8]),
		Count: buf[8],
		TS0:   binary.BigEndian.Uint64(buf[12:20]),
		TS1:   binary.BigEndian.Uint64(buf[20:28]),
		TS2:   binary.BigEndian.Uint64(buf[28:36]),
	}
	return s, minLen[cmd], nil
}

// EncodeSync serializes a CK PDU.
func EncodeSync(s Sync) []byte {
	buf := make([]byte, 36)
	buf[0], buf[1] = signature[0], signature[1]
	buf[2], buf[3] = CommandSynchronization[0], CommandSynchronization[1]
	binary.BigEndian.PutUint32(buf[4:8], s.SSRC)
	buf[8] = s.Count
	// buf[9:12] is padding, left zero.
	binary.BigEndian.PutUint64(buf[12:20], s.TS0)
	binary.BigEndian.PutUint64(buf[20:28], s.TS1)
	binary.BigEndian.PutUint64(buf[28:36], s.TS2)
	return buf
}

// DecodeFeedback decodes an RS PDU, consuming exactly 12 bytes.
func DecodeFeedback(buf []byte) (Feedback, int, error) {
	cmd, err := PeekCommand(buf)
	if err != nil {
		return Feedback{}, 0, err
	}
	if cmd != CommandReceiverFeedback {
		return Feedback{}, 0, fmt.Errorf("wire: %w: not RS", ErrUnexpectedData)
	}
	if len(buf) < minLen[cmd] {
		return Feedback{}, 0, ErrNotEnoughData
	}
	f := Feedback{
		SSRC:           binary.BigEndian.Uint32(buf[4:8]),
		SequenceNumber: binary.BigEndian.Uint16(buf[8:10]),
	}
	return f, minLen[cmd], nil
}

// EncodeFeedback serializes an RS PDU.
func EncodeFeedback(f Feedback) []byte {
	buf := make([]byte, 12)
	buf[0], buf[1] = signature[0], signature[1]
	buf[2], buf[3] = CommandReceiverFeedback[0], CommandReceiverFeedback[1]
	binary.BigEndian.PutUint32(buf[4:8], f.SSRC)
	binary.BigEndian.PutUint16(buf[8:10], f.SequenceNumber)
	return buf
}

// DecodeBitrateLimit decodes an RL PDU, consuming exactly 12 bytes.
func DecodeBitrateLimit(buf []byte) (BitrateLimit, int, error) {
	cmd, err := PeekCommand(buf)
	if err != nil {
		return BitrateLimit{}, 0, err
	}
	if cmd != CommandBitrateReceiveLimit {
		return BitrateLimit{}, 0, fmt.Errorf("wire: %w: not RL", ErrUnexpectedData)
	}
	if len(buf) < minLen[cmd] {
		return BitrateLimit{}, 0, ErrNotEnoughData
	}
	b := BitrateLimit{
		SSRC:  binary.BigEndian.Uint32(buf[4:8]),
		Limit: binary.BigEndian.Uint32(buf[8:12]),
	}
	return b, minLen[cmd], nil
}

// EncodeBitrateLimit serializes an RL PDU.
func EncodeBitrateLimit(b BitrateLimit) []byte {
	buf := make([]byte, 12)
	buf[0], buf[1] = signature[0], signature[1]
	buf[2], buf[3] = CommandBitrateReceiveLimit[0], CommandBitrateReceiveLimit[1]
	binary.BigEndian.PutUint32(buf[4:8], b.SSRC)
	binary.BigEndian.PutUint32(buf[8:12], b.Limit)
	return buf
}
