// Package participant models per-peer session state: ssrc, endpoints,
// sequence counters, invitation bookkeeping, clock-sync bookkeeping, and
// a bounded outbound MIDI buffer. There is no per-participant inbound
// buffer; decoded MIDI goes straight to the host callback.
package participant

import (
	"errors"
	"net"
	"sync"
	"time"
)

// MaxBuffer bounds every per-participant FIFO byte/datagram queue.
const MaxBuffer = 64

// ErrBufferFull is returned by buffer writers when appending would exceed
// MaxBuffer.
var ErrBufferFull = errors.New("participant: buffer full")

// Kind distinguishes which side of the handshake a participant represents.
type Kind int

const (
	Initiator Kind = iota
	Listener
)

func (k Kind) String() string {
	if k == Initiator {
		return "initiator"
	}
	return "listener"
}

// InviteState is the invitation handshake state machine.
type InviteState int

const (
	Idle InviteState = iota
	Initiating
	AwaitingControlOK
	ControlAccepted
	AwaitingDataOK
	DataAccepted
	Connected
)

func (s InviteState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Initiating:
		return "Initiating"
	case AwaitingControlOK:
		return "AwaitingControlOK"
	case ControlAccepted:
		return "ControlAccepted"
	case AwaitingDataOK:
		return "AwaitingDataOK"
	case DataAccepted:
		return "DataAccepted"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Endpoint is a UDP (host, port) pair.
type Endpoint struct {
	IP   net.IP
	Port int
}

// DataEndpoint returns the implied data-port endpoint for a control
// endpoint, per the AppleMIDI convention control_port+1 == data_port.
func (e Endpoint) DataEndpoint() Endpoint {
	return Endpoint{IP: e.IP, Port: e.Port + 1}
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), itoa(e.Port))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Participant is a remote peer's complete session state.
// The session engine owns Participants exclusively; host code never holds
// a reference, only the opaque device ID string.
type Participant struct {
	mu sync.Mutex

	Kind            Kind
	SSRC            uint32 // 0 means not yet learned
	ControlEndpoint Endpoint
	DataEndpoint    Endpoint
	SessionName     string

	InviteState        InviteState
	InitiatorToken     uint32
	ConnectionAttempts uint8
	LastInviteSent     time.Time

	SendSeq              uint16 // next RTP sequence number to emit
	RecvSeq              uint16 // last observed peer sequence number
	FirstMessageReceived bool
	LostPacketCount      uint32

	OffsetEstimate   int64
	Synchronizing    bool
	SyncCount        uint8
	SyncHeartbeats   uint8
	LastSyncExchange time.Time

	ReceiverFeedbackPending bool
	ReceiverFeedbackStart   time.Time

	// ReceiveBitrateLimit records the peer's most recently advertised RL
	// value. No action is taken on receipt beyond recording it; this
	// library has no outbound bandwidth governor to throttle.
	ReceiveBitrateLimit uint32

	outbound []byte // accumulated outbound MIDI bytes awaiting send
}

// New builds a Participant with its invariant control/data endpoint pair
// and a random initial SendSeq.
func New(kind Kind, control Endpoint, sendSeq uint16) *Participant {
	return &Participant{
		Kind:            kind,
		ControlEndpoint: control,
		DataEndpoint:    control.DataEndpoint(),
		InviteState:     Idle,
		SendSeq:         sendSeq,
	}
}

// DeviceID renders the public device identifier for this participant,
// addressed by the session's listen port.
func (p *Participant) DeviceID(listenPort int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "RtpMidi:" + itoa(listenPort) + ":" + uitoa(uint64(p.SSRC))
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// PushOutbound appends data to the outbound MIDI byte queue, failing with
// ErrBufferFull rather than exceeding MaxBuffer.
func (p *Participant) PushOutbound(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.outbound)+len(data) > MaxBuffer {
		return ErrBufferFull
	}
	p.outbound = append(p.outbound, data...)
	return nil
}

// HasPendingOutbound reports whether any bytes are already queued for
// send, so a caller can decide whether a newly queued command needs a
// leading delta-time separator.
func (p *Participant) HasPendingOutbound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outbound) > 0
}

// DrainOutbound removes and returns all pending outbound bytes.
func (p *Participant) DrainOutbound() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.outbound) == 0 {
		return nil
	}
	out := p.outbound
	p.outbound = nil
	return out
}

// NextSendSeq returns the current SendSeq and increments it, wrapping mod
// 2^16.
func (p *Participant) NextSendSeq() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.SendSeq
	p.SendSeq++
	return seq
}

// ObserveSeq updates RecvSeq and reports whether packets were dropped
// (a gap in the monotonically-tracked sequence space, mod 2^16).
func (p *Participant) ObserveSeq(seq uint16) (lost uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.FirstMessageReceived {
		p.FirstMessageReceived = true
		p.RecvSeq = seq
		return 0
	}
	delta := int16(seq - p.RecvSeq)
	if delta > 1 {
		lost = uint32(delta - 1)
		p.LostPacketCount += lost
	}
	p.RecvSeq = seq
	return lost
}
