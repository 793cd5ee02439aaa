package clock

import (
	"testing"
	"time"
)

func TestNowMonotonic(t *testing.T) {
	c := New(DefaultRate)

	first := c.Now()
	time.Sleep(5 * time.Millisecond)
	second := c.Now()

	if second < first {
		t.Errorf("Now() went backwards: first=%d second=%d", first, second)
	}
	if second == first {
		t.Errorf("Now() did not advance after 5ms sleep")
	}
}

func TestDefaultRate(t *testing.T) {
	c := New(0)
	if c.Rate() != DefaultRate {
		t.Errorf("Rate() = %d, want default %d", c.Rate(), DefaultRate)
	}
}

func TestTimestamp32IsLow32Bits(t *testing.T) {
	c := New(DefaultRate)
	ts := c.Timestamp32()
	now := c.Now()
	if int64(ts) > now {
		t.Errorf("Timestamp32 %d should not exceed Now %d immediately after", ts, now)
	}
}
