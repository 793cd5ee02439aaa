// Package clock provides the monotonic millisecond clock that AppleMIDI
// sessions derive RTP timestamps from.
package clock

import "time"

// DefaultRate is the RTP clock rate used by AppleMIDI sessions when none is
// configured: 10 kHz, per the Apple Network MIDI driver protocol.
const DefaultRate = 10000

// Clock is a monotonic, epoch-anchored tick source. Its zero value is not
// ready for use; call New to obtain one.
type Clock struct {
	start time.Time
	rate  int64
}

// New returns a Clock anchored at the current instant, ticking at rateHz.
// A rateHz of 0 falls back to DefaultRate.
func New(rateHz int) *Clock {
	if rateHz <= 0 {
		rateHz = DefaultRate
	}
	return &Clock{start: time.Now(), rate: int64(rateHz)}
}

// Now returns the number of clock ticks elapsed since the Clock was created.
// It is monotonic for the lifetime of the Clock.
func (c *Clock) Now() int64 {
	elapsed := time.Since(c.start)
	return elapsed.Milliseconds() * c.rate / 1000
}

// Timestamp32 returns the low 32 bits of Now, the form carried in the RTP
// header's timestamp field.
func (c *Clock) Timestamp32() uint32 {
	return uint32(c.Now())
}

// Rate returns the configured tick rate in Hz.
func (c *Clock) Rate() int {
	return int(c.rate)
}
