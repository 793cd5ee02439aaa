package participant

import (
	"errors"
	"net"
	"testing"
)

func TestDataEndpointInvariant(t *testing.T) {
	control := Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}
	p := New(Initiator, control, 1)
	if p.DataEndpoint.Port != p.ControlEndpoint.Port+1 {
		t.Errorf("data port = %d, control port = %d, want control+1", p.DataEndpoint.Port, p.ControlEndpoint.Port)
	}
}

func TestPushOutboundBufferFull(t *testing.T) {
	p := New(Initiator, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 1)
	if err := p.PushOutbound(make([]byte, MaxBuffer)); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := p.PushOutbound([]byte{1}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("err = %v, want ErrBufferFull", err)
	}
}

func TestDrainOutboundEmptiesQueue(t *testing.T) {
	p := New(Initiator, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 1)
	p.PushOutbound([]byte{1, 2, 3})
	got := p.DrainOutbound()
	if len(got) != 3 {
		t.Fatalf("got %d bytes, want 3", len(got))
	}
	if rest := p.DrainOutbound(); rest != nil {
		t.Errorf("second drain = %v, want nil", rest)
	}
}

func TestNextSendSeqIncrements(t *testing.T) {
	p := New(Initiator, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 100)
	if s := p.NextSendSeq(); s != 100 {
		t.Errorf("first seq = %d, want 100", s)
	}
	if s := p.NextSendSeq(); s != 101 {
		t.Errorf("second seq = %d, want 101", s)
	}
}

func TestNextSendSeqWraps(t *testing.T) {
	p := New(Initiator, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 0xFFFF)
	if s := p.NextSendSeq(); s != 0xFFFF {
		t.Fatalf("got %d, want 0xFFFF", s)
	}
	if s := p.NextSendSeq(); s != 0 {
		t.Errorf("wrapped seq = %d, want 0", s)
	}
}

func TestObserveSeqFirstMessage(t *testing.T) {
	p := New(Listener, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 0)
	if lost := p.ObserveSeq(42); lost != 0 {
		t.Errorf("first observation lost = %d, want 0", lost)
	}
	if p.RecvSeq != 42 {
		t.Errorf("RecvSeq = %d, want 42", p.RecvSeq)
	}
}

func TestObserveSeqDetectsLoss(t *testing.T) {
	p := New(Listener, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 0)
	p.ObserveSeq(10)
	lost := p.ObserveSeq(13)
	if lost != 2 {
		t.Errorf("lost = %d, want 2", lost)
	}
	if p.LostPacketCount != 2 {
		t.Errorf("LostPacketCount = %d, want 2", p.LostPacketCount)
	}
}

func TestObserveSeqWrapsCleanly(t *testing.T) {
	p := New(Listener, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 0)
	p.ObserveSeq(0xFFFF)
	lost := p.ObserveSeq(0)
	if lost != 0 {
		t.Errorf("lost across wrap = %d, want 0", lost)
	}
}

func TestDeviceIDFormat(t *testing.T) {
	p := New(Listener, Endpoint{IP: net.ParseIP("127.0.0.1"), Port: 5004}, 0)
	p.SSRC = 0x22222222
	got := p.DeviceID(5004)
	want := "RtpMidi:5004:572662306"
	if got != want {
		t.Errorf("DeviceID = %q, want %q", got, want)
	}
}
