package wire

import (
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := Header{SequenceNumber: 12345, Timestamp: 0xABCDEF01, SSRC: 0x11111111}
	buf := EncodeHeader(want)
	if len(buf) != RTPHeaderLen {
		t.Fatalf("EncodeHeader length = %d, want %d", len(buf), RTPHeaderLen)
	}
	if buf[0]>>6 != 2 {
		t.Errorf("version bits = %d, want 2", buf[0]>>6)
	}
	if buf[1]&0x7F != PayloadType {
		t.Errorf("payload type = %d, want %d", buf[1]&0x7F, PayloadType)
	}

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != want {
		t.Errorf("DecodeHeader = %+v, want %+v", got, want)
	}
}

func TestDecodeHeaderBadVersion(t *testing.T) {
	buf := EncodeHeader(Header{})
	buf[0] = 1 << 6 // version 1
	_, err := DecodeHeader(buf)
	if !errors.Is(err, ErrUnexpectedData) {
		t.Errorf("err = %v, want ErrUnexpectedData", err)
	}
}

func TestDecodeHeaderBadPayloadType(t *testing.T) {
	buf := EncodeHeader(Header{})
	buf[1] = 96
	_, err := DecodeHeader(buf)
	if !errors.Is(err, ErrUnexpectedData) {
		t.Errorf("err = %v, want ErrUnexpectedData", err)
	}
}

func TestFlagsShortHeaderBoundary(t *testing.T) {
	buf := EncodeFlags(Flags{CommandListLen: 14})
	if len(buf) != 1 {
		t.Fatalf("LEN=14 should use short header, got %d bytes", len(buf))
	}
	f, n, err := DecodeFlags(buf)
	if err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}
	if n != 1 || f.CommandListLen != 14 {
		t.Errorf("got n=%d len=%d, want n=1 len=14", n, f.CommandListLen)
	}
}

func TestFlagsLongHeaderBoundary(t *testing.T) {
	buf := EncodeFlags(Flags{CommandListLen: 15})
	if len(buf) != 2 {
		t.Fatalf("LEN=15 should use long header, got %d bytes", len(buf))
	}
	f, n, err := DecodeFlags(buf)
	if err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}
	if n != 2 || f.CommandListLen != 15 {
		t.Errorf("got n=%d len=%d, want n=2 len=15", n, f.CommandListLen)
	}
}

func TestFlagsZAndJBits(t *testing.T) {
	want := Flags{HasDeltaTimeOnFirstCommand: true, HasJournal: true, CommandListLen: 300}
	buf := EncodeFlags(want)
	got, _, err := DecodeFlags(buf)
	if err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}
	if got != want {
		t.Errorf("DecodeFlags = %+v, want %+v", got, want)
	}
}

func TestDecodeFlagsNotEnoughData(t *testing.T) {
	_, _, err := DecodeFlags(nil)
	if !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("err = %v, want ErrNotEnoughData", err)
	}
	_, _, err = DecodeFlags([]byte{0x80})
	if !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("err = %v, want ErrNotEnoughData for truncated long header", err)
	}
}
