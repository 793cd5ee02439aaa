package journal

import (
	"sync"

	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
)

// Recorder accumulates per-channel and system deltas since the last
// checkpoint and serializes them into a journal section on demand. It
// implements record_channel, record_system, and drain_journal.
type Recorder struct {
	mu       sync.Mutex
	channels map[byte]*ChannelChapter
	system   SystemChapter
	seq      uint16
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{channels: make(map[byte]*ChannelChapter)}
}

// SetCheckpoint records the sequence number the next drained journal
// should advertise as its checkpoint.
func (r *Recorder) SetCheckpoint(seq uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = seq
}

// RecordChannel folds a decoded channel-voice event into that channel's
// accumulated chapter state.
func (r *Recorder) RecordChannel(ch byte, ev midicmd.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[ch]
	if !ok {
		c = &ChannelChapter{}
		r.channels[ch] = c
	}

	switch ev.Type {
	case midicmd.ProgramChange:
		v := ev.Data1
		c.Program = &v
	case midicmd.ControlChange:
		if c.ControlChanges == nil {
			c.ControlChanges = make(map[byte]byte)
		}
		c.ControlChanges[ev.Data1] = ev.Data2
	case midicmd.PitchBend:
		v := midicmd.PitchBendAmount(ev)
		c.PitchWheel = &v
	case midicmd.NoteOn:
		c.Notes = append(c.Notes, NoteEntry{Note: ev.Data1, On: ev.Data2 > 0, Velocity: ev.Data2})
	case midicmd.NoteOff:
		c.Notes = append(c.Notes, NoteEntry{Note: ev.Data1, On: false, Velocity: ev.Data2})
	case midicmd.ChannelAftertouch:
		v := ev.Data1
		c.Aftertouch = &v
	case midicmd.PolyAftertouch:
		if c.PolyAftertouch == nil {
			c.PolyAftertouch = make(map[byte]byte)
		}
		c.PolyAftertouch[ev.Data1] = ev.Data2
	}
}

// RecordSystem folds a decoded system-common/realtime event into the
// accumulated system chapter state.
func (r *Recorder) RecordSystem(ev midicmd.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case midicmd.Reset:
		r.incr(&r.system.ResetCount)
	case midicmd.TuneRequest:
		r.incr(&r.system.TuneRequestCount)
	case midicmd.SongSelect:
		v := ev.Data1
		r.system.LastSongSelect = &v
	case midicmd.ActiveSensing:
		r.incr(&r.system.ActiveSenseCount)
	case midicmd.SongPositionPointer:
		v := midicmd.SongPositionAmount(ev)
		r.system.SongPosition = &v
	case midicmd.Start, midicmd.Continue:
		running := true
		r.system.SequencerRunning = &running
	case midicmd.Stop:
		running := false
		r.system.SequencerRunning = &running
	}
}

func (r *Recorder) incr(field **uint16) {
	if *field == nil {
		v := uint16(1)
		*field = &v
		return
	}
	**field++
}

// DrainJournal serializes and clears all accumulated state, returning the
// complete journal section: header, then system chapter if present, then
// channel entries if present.
func (r *Recorder) DrainJournal() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	hasSystem := r.system.ResetCount != nil || r.system.TuneRequestCount != nil ||
		r.system.LastSongSelect != nil || r.system.ActiveSenseCount != nil ||
		r.system.SongPosition != nil || r.system.SequencerRunning != nil
	hasChannels := len(r.channels) > 0

	h := Header{
		SystemJournalPresent:  hasSystem,
		ChannelJournalPresent: hasChannels,
		TotalChannels:         len(r.channels),
		CheckpointSeq:         r.seq,
	}
	out := EncodeHeader(h)

	if hasSystem {
		out = append(out, EncodeSystemChapter(r.system)...)
	}
	if hasChannels {
		for ch := byte(0); ch < 16; ch++ {
			if c, ok := r.channels[ch]; ok {
				out = append(out, EncodeChannelEntry(*c)...)
			}
		}
	}

	r.channels = make(map[byte]*ChannelChapter)
	r.system = SystemChapter{}
	return out
}
