package journal

import (
	"testing"

	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
)

func TestEmptyJournalHasNoChapters(t *testing.T) {
	buf := Empty(42)
	h, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if n != 3 {
		t.Fatalf("consumed = %d, want 3", n)
	}
	if h.SystemJournalPresent || h.ChannelJournalPresent {
		t.Errorf("empty journal should have Y=0, A=0, got %+v", h)
	}
	if h.CheckpointSeq != 42 {
		t.Errorf("CheckpointSeq = %d, want 42", h.CheckpointSeq)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	want := Header{SystemJournalPresent: true, ChannelJournalPresent: true, TotalChannels: 3, CheckpointSeq: 999}
	buf := EncodeHeader(want)
	got, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if n != 3 || got != want {
		t.Errorf("got %+v (n=%d), want %+v", got, n, want)
	}
}

func TestChannelEntryRoundTrip(t *testing.T) {
	program := byte(12)
	pitch := uint16(9000)
	want := ChannelChapter{
		Program:      &program,
		ControlChanges: map[byte]byte{7: 100, 10: 64},
		PitchWheel:   &pitch,
		Notes:        []NoteEntry{{Note: 60, On: true, Velocity: 127}, {Note: 60, On: false, Velocity: 0}},
	}
	buf := EncodeChannelEntry(want)
	got, n, err := DecodeChannelEntry(buf)
	if err != nil {
		t.Fatalf("DecodeChannelEntry: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed = %d, want %d", n, len(buf))
	}
	if *got.Program != program {
		t.Errorf("Program = %d, want %d", *got.Program, program)
	}
	if *got.PitchWheel != pitch {
		t.Errorf("PitchWheel = %d, want %d", *got.PitchWheel, pitch)
	}
	if len(got.Notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(got.Notes))
	}
	if got.ControlChanges[7] != 100 || got.ControlChanges[10] != 64 {
		t.Errorf("ControlChanges = %+v", got.ControlChanges)
	}
}

func TestSystemChapterRoundTrip(t *testing.T) {
	resetCount := uint16(2)
	running := true
	want := SystemChapter{ResetCount: &resetCount, SequencerRunning: &running}
	buf := EncodeSystemChapter(want)
	got, n, err := DecodeSystemChapter(buf)
	if err != nil {
		t.Fatalf("DecodeSystemChapter: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed = %d, want %d", n, len(buf))
	}
	if *got.ResetCount != resetCount {
		t.Errorf("ResetCount = %d, want %d", *got.ResetCount, resetCount)
	}
	if got.SequencerRunning == nil || *got.SequencerRunning != true {
		t.Errorf("SequencerRunning = %v, want true", got.SequencerRunning)
	}
}

func TestRecorderDrainRoundTrip(t *testing.T) {
	r := NewRecorder()
	r.SetCheckpoint(7)
	r.RecordChannel(0, midicmd.NewNoteOn(0, 60, 127))
	r.RecordChannel(0, midicmd.NewControlChange(0, 7, 100))
	r.RecordSystem(midicmd.NewStart())

	buf := r.DrainJournal()
	h, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !h.SystemJournalPresent || !h.ChannelJournalPresent {
		t.Fatalf("expected both system and channel journals present, got %+v", h)
	}
	if h.CheckpointSeq != 7 {
		t.Errorf("CheckpointSeq = %d, want 7", h.CheckpointSeq)
	}

	rest := buf[n:]
	sys, sn, err := DecodeSystemChapter(rest)
	if err != nil {
		t.Fatalf("DecodeSystemChapter: %v", err)
	}
	if sys.SequencerRunning == nil || !*sys.SequencerRunning {
		t.Errorf("expected SequencerRunning=true")
	}

	rest = rest[sn:]
	ch, _, err := DecodeChannelEntry(rest)
	if err != nil {
		t.Fatalf("DecodeChannelEntry: %v", err)
	}
	if len(ch.Notes) != 1 || ch.Notes[0].Note != 60 {
		t.Errorf("Notes = %+v", ch.Notes)
	}
	if ch.ControlChanges[7] != 100 {
		t.Errorf("ControlChanges[7] = %d, want 100", ch.ControlChanges[7])
	}

	// Draining again should yield an empty journal — state was cleared.
	buf2 := r.DrainJournal()
	h2, _, err := DecodeHeader(buf2)
	if err != nil {
		t.Fatalf("DecodeHeader second drain: %v", err)
	}
	if h2.SystemJournalPresent || h2.ChannelJournalPresent {
		t.Errorf("second drain should be empty, got %+v", h2)
	}
}
