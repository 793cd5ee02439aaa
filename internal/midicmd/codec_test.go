package midicmd

import (
	"bytes"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

// TestEncodeNoteOn checks a NoteOn's status nibble (0x90 | channel)
// plus masked data bytes.
func TestEncodeNoteOn(t *testing.T) {
	ev := NewNoteOn(1, 64, 127)
	got := Encode(ev)
	want := []byte{0x91, 0x40, 0x7F}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(NoteOn) = % X, want % X", got, want)
	}
}

// TestDecodeRunningStatus checks that with Z=1 (first command has a
// delta-time), the command list "00 90 3C 7F 00 3E 7F" decodes to two
// NoteOn events sharing running status 0x90.
func TestDecodeRunningStatus(t *testing.T) {
	buf := []byte{0x00, 0x90, 0x3C, 0x7F, 0x00, 0x3E, 0x7F}
	d := NewDecoder()
	events, split, err := d.DecodeCommandList(buf, len(buf), true)
	if err != nil {
		t.Fatalf("DecodeCommandList: %v", err)
	}
	if split {
		t.Fatalf("unexpected split")
	}
	want := []Event{
		{Type: NoteOn, Channel: 0, Data1: 0x3C, Data2: 0x7F},
		{Type: NoteOn, Channel: 0, Data1: 0x3E, Data2: 0x7F},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i := range want {
		if !reflect.DeepEqual(events[i], want[i]) {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}

// TestSysExSplit checks SysEx split across packets: the first packet's
// MIDI section ends mid-SysEx, the decoder reports an incomplete chunk
// and carries state so the second packet's leading bytes are treated
// as continuation.
func TestSysExSplit(t *testing.T) {
	d := NewDecoder()

	first := []byte{0xF0, 0x7E, 0x00, 0x06, 0x01}
	events, split, err := d.DecodeCommandList(first, len(first), false)
	if err != nil {
		t.Fatalf("first packet: %v", err)
	}
	if !split {
		t.Fatalf("expected split after first packet")
	}
	if len(events) != 1 || events[0].Complete {
		t.Fatalf("expected one incomplete chunk, got %+v", events)
	}
	if !bytes.Equal(events[0].SysEx, []byte{0x7E, 0x00, 0x06, 0x01}) {
		t.Errorf("first chunk payload = % X", events[0].SysEx)
	}

	second := []byte{0x02, 0x03, 0xF7}
	events, split, err = d.DecodeCommandList(second, len(second), false)
	if err != nil {
		t.Fatalf("second packet: %v", err)
	}
	if split {
		t.Fatalf("unexpected split after terminating F7")
	}
	if len(events) != 1 || !events[0].Complete || !events[0].Continuation {
		t.Fatalf("expected one complete continuation chunk, got %+v", events)
	}

	reassembled := []byte{0xF0}
	reassembled = append(reassembled, 0x7E, 0x00, 0x06, 0x01)
	reassembled = append(reassembled, events[0].SysEx...)
	reassembled = append(reassembled, 0xF7)
	want := []byte{0xF0, 0x7E, 0x00, 0x06, 0x01, 0x02, 0x03, 0xF7}
	if !bytes.Equal(reassembled, want) {
		t.Errorf("reassembled = % X, want % X", reassembled, want)
	}
}

func TestNoteOffRunningStatusElided(t *testing.T) {
	explicit := []byte{0x80, 0x40, 0x00}
	elided := []byte{0x80, 0x40, 0x00, 0x00, 0x41, 0x00}

	d1 := NewDecoder()
	evExplicit, _, err := d1.DecodeCommandList(explicit, len(explicit), false)
	if err != nil {
		t.Fatalf("explicit decode: %v", err)
	}

	d2 := NewDecoder()
	evElided, _, err := d2.DecodeCommandList(elided, len(elided), false)
	if err != nil {
		t.Fatalf("elided decode: %v", err)
	}
	if len(evElided) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(evElided), evElided)
	}
	if !reflect.DeepEqual(evElided[0], evExplicit[0]) {
		t.Errorf("elided[0] = %+v, want %+v", evElided[0], evExplicit[0])
	}
	if evElided[1].Type != NoteOff || evElided[1].Data1 != 0x41 {
		t.Errorf("elided[1] = %+v", evElided[1])
	}
}

func TestDeltaTimeBoundaries(t *testing.T) {
	if got := EncodeDeltaTime(0); !bytes.Equal(got, []byte{0x00}) {
		t.Errorf("EncodeDeltaTime(0) = % X, want 00", got)
	}
	if got := EncodeDeltaTime(268435455); !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0x7F}) {
		t.Errorf("EncodeDeltaTime(2^28-1) = % X, want FF FF FF 7F", got)
	}
	v, n, err := DecodeDeltaTime([]byte{0xFF, 0xFF, 0xFF, 0x7F})
	if err != nil {
		t.Fatalf("DecodeDeltaTime: %v", err)
	}
	if v != 268435455 || n != 4 {
		t.Errorf("got v=%d n=%d, want v=268435455 n=4", v, n)
	}
}

func TestEncodeDecodeRoundTripAllTypes(t *testing.T) {
	events := []Event{
		NewNoteOff(5, 10, 20),
		NewNoteOn(5, 10, 20),
		NewPolyAftertouch(5, 10, 20),
		NewControlChange(5, 10, 20),
		NewProgramChange(5, 42),
		NewChannelAftertouch(5, 99),
		NewPitchWheel(5, 8192),
		NewTimeCodeQuarterFrame(7),
		NewSongSelect(3),
		NewSongPositionPointer(1000),
		NewTuneRequest(),
		NewTimingClock(),
		NewStart(),
		NewContinue(),
		NewStop(),
		NewActiveSensing(),
		NewReset(),
	}
	for _, ev := range events {
		buf := Encode(ev)
		d := NewDecoder()
		got, split, err := d.DecodeCommandList(buf, len(buf), false)
		if err != nil {
			t.Fatalf("%s: decode: %v", ev.Type, err)
		}
		if split {
			t.Fatalf("%s: unexpected split", ev.Type)
		}
		if len(got) != 1 {
			t.Fatalf("%s: got %d events, want 1", ev.Type, len(got))
		}
		if got[0].Type != ev.Type || got[0].Channel != ev.Channel || got[0].Data1 != ev.Data1 || got[0].Data2 != ev.Data2 {
			t.Errorf("%s: round trip = %+v, want %+v", ev.Type, got[0], ev)
		}
	}
}

func TestPitchWheelRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		channel := uint8(rapid.IntRange(0, 15).Draw(rt, "channel"))
		amount := uint16(rapid.IntRange(0, 16383).Draw(rt, "amount"))

		ev := NewPitchWheel(channel, amount)
		buf := Encode(ev)
		d := NewDecoder()
		got, _, err := d.DecodeCommandList(buf, len(buf), false)
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if len(got) != 1 {
			rt.Fatalf("got %d events, want 1", len(got))
		}
		if got[0].Channel != channel {
			rt.Fatalf("channel = %d, want %d", got[0].Channel, channel)
		}
		if gotAmount := PitchBendAmount(got[0]); gotAmount != amount {
			rt.Fatalf("amount = %d, want %d", gotAmount, amount)
		}
	})
}

func TestSysExSplitReassemblyProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(7, 300).Draw(rt, "length")
		payload := rapid.SliceOfN(rapid.IntRange(0, 0x7F), length, length).Draw(rt, "payload")
		raw := make([]byte, length)
		for i, v := range payload {
			raw[i] = byte(v)
		}
		full := append([]byte{0xF0}, raw...)
		full = append(full, 0xF7)

		splitAt := rapid.IntRange(1, len(full)-1).Draw(rt, "splitAt")
		first := full[:splitAt]
		second := full[splitAt:]

		d := NewDecoder()
		var reassembled []byte
		ev1, split1, err := d.DecodeCommandList(first, len(first), false)
		if err != nil {
			rt.Fatalf("first: %v", err)
		}
		for _, e := range ev1 {
			reassembled = append(reassembled, e.SysEx...)
		}
		if split1 {
			ev2, split2, err := d.DecodeCommandList(second, len(second), false)
			if err != nil {
				rt.Fatalf("second: %v", err)
			}
			if split2 {
				rt.Fatalf("unexpected second split for length %d, splitAt %d", length, splitAt)
			}
			for _, e := range ev2 {
				reassembled = append(reassembled, e.SysEx...)
			}
		}

		got := append([]byte{0xF0}, reassembled...)
		got = append(got, 0xF7)
		if !bytes.Equal(got, full) {
			rt.Fatalf("reassembled = % X, want % X", got, full)
		}
	})
}
