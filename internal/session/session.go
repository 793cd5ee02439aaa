// Package session implements the AppleMIDI/RTP-MIDI session engine: the
// invitation handshake state machine, clock synchronization, receiver
// feedback, timeout-driven lifecycle, and participant table, all driven
// by a single Tick call so the engine itself never spawns a goroutine.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-rtpmidi/rtpmidi/internal/clock"
	"github.com/go-rtpmidi/rtpmidi/internal/journal"
	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
	"github.com/go-rtpmidi/rtpmidi/internal/participant"
)

// MaxParticipants bounds the session's participant table.
const MaxParticipants = 64

// invitationRetryInterval and maxInvitationAttempts implement the retry
// boundary: on the 13th unacknowledged IN, exactly one BY is emitted.
const (
	invitationRetryInterval = 1 * time.Second
	maxInvitationAttempts   = 13
)

// CK sync cadence: two fast heartbeats, then five medium,
// then settle at the slow cadence; MaxCK0Attempts and CKMaxTimeout bound
// a stalled or dead peer.
const (
	MaxCK0Attempts = 5
	CKMaxTimeout   = 61 * time.Second
)

var syncHeartbeatCadence = []time.Duration{
	500 * time.Millisecond, 500 * time.Millisecond,
	1500 * time.Millisecond, 1500 * time.Millisecond, 1500 * time.Millisecond,
	1500 * time.Millisecond, 1500 * time.Millisecond,
	10 * time.Second,
}

// receiverFeedbackThreshold is how long a received packet may go
// unacknowledged before an RS is emitted.
const receiverFeedbackThreshold = 1 * time.Second

// MIDIListener receives one callback per decoded MIDI event, addressed by
// the originating participant's device ID.
type MIDIListener func(deviceID string, ev midicmd.Event)

// ConnectionListener receives attach/detach notifications.
type ConnectionListener interface {
	OnAttached(deviceID string)
	OnDetached(deviceID string)
}

// ErrorListener receives the optional non-fatal error stream.
type ErrorListener func(kind ErrorKind, detail error)

// Options configures a new Session. The library itself never reads flags
// or environment variables;
// that belongs to cmd/rtpmidid's internal/config layer.
type Options struct {
	SessionName string
	ListenPort  int

	OnMIDI       MIDIListener
	OnConnection ConnectionListener
	OnError      ErrorListener

	JournalEnabled bool
	Logger         *slog.Logger
}

// participantEntry pairs a Participant with the decoder state and journal
// recorder scoped to its stream, plus protocol bookkeeping that belongs
// to the wire exchange rather than the participant's own data model.
type participantEntry struct {
	p       *participant.Participant
	decoder *midicmd.Decoder
	journal *journal.Recorder

	pendingTS0  uint64
	pendingTS1  uint64
	ck0Attempts uint8
}

// Session owns the two UDP sockets (control, data), the participant
// table, and the local clock. Exactly one goroutine should call Tick;
// the public Send* surface may be called from other goroutines and is
// guarded by mu.
type Session struct {
	mu sync.Mutex

	opts      Options
	localSSRC uint32
	clock     *clock.Clock
	logger    *slog.Logger

	controlConn *net.UDPConn
	dataConn    *net.UDPConn
	started     bool

	// table is keyed by the peer's control endpoint address string until
	// its ssrc is learned, after which ssrcIndex also resolves it. This
	// mirrors the convention that ssrc==0 means "not yet learned" while
	// still requiring a stable key for invitation bookkeeping.
	table     map[string]*participantEntry
	ssrcIndex map[uint32]*participantEntry

	rateLimiter *addrRateLimiter

	packetsSent     uint64
	packetsReceived uint64
	packetsDropped  uint64
	bytesSent       uint64
	bytesReceived   uint64
	errorCounts     map[string]uint64
}

// New constructs a Session. It does not open sockets; call Start for that.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session", "instance", uuid.NewString())

	return &Session{
		opts:        opts,
		clock:       clock.New(clock.DefaultRate),
		logger:      logger,
		table:       make(map[string]*participantEntry),
		ssrcIndex:   make(map[uint32]*participantEntry),
		rateLimiter: newAddrRateLimiter(defaultInviteRateLimitConfig()),
		errorCounts: make(map[string]uint64),
	}
}

// Start opens the control and data UDP sockets and generates the local
// ssrc. It does not spawn any goroutine; callers drive the session via
// repeated Tick calls.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	control, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.opts.ListenPort})
	if err != nil {
		return fmt.Errorf("session: listening on control port %d: %w", s.opts.ListenPort, err)
	}
	data, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.opts.ListenPort + 1})
	if err != nil {
		control.Close()
		return fmt.Errorf("session: listening on data port %d: %w", s.opts.ListenPort+1, err)
	}

	s.controlConn = control
	s.dataConn = data
	s.localSSRC = randomUint32()
	s.started = true

	s.logger.Info("session started", "listen_port", s.opts.ListenPort, "ssrc", s.localSSRC)
	return nil
}

// Stop closes both sockets. Stop is the only fatal event;
// it does not attempt to gracefully BY every participant (the host
// process is going away with the sockets).
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	var errs []error
	if err := s.controlConn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.dataConn.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("session stopped")
	if len(errs) > 0 {
		return fmt.Errorf("session: stop: %v", errs)
	}
	return nil
}

// IsStarted reports whether Start has been called without a matching Stop.
func (s *Session) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// reportError forwards kind to the optional OnError listener and tallies
// it for the metrics collector.
func (s *Session) reportError(kind ErrorKind, detail error) {
	s.mu.Lock()
	s.errorCounts[kind.String()]++
	s.mu.Unlock()
	if s.opts.OnError != nil {
		s.opts.OnError(kind, detail)
	}
}

// Tick drives one iteration of the engine: drain both sockets, advance
// the invitation/sync/feedback state machines, and flush outbound
// buffers. Intended to be called at a fixed cadence by a thin driver
// such as cmd/rtpmidid.
func (s *Session) Tick() {
	now := time.Now()

	s.drainControlSocket()
	s.drainDataSocket()

	s.mu.Lock()
	entries := make([]*participantEntry, 0, len(s.table))
	for _, e := range s.table {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.advanceInvite(e, now)
		s.advanceSync(e, now)
		s.checkListenerTimeout(e, now)
		s.flushReceiverFeedback(e, now)
		s.flushOutbound(e)
	}

	s.rateLimiter.cleanup(now)
}

func (s *Session) keyFor(addr *net.UDPAddr) string {
	return addr.String()
}

// participantByKey returns the entry for key, if any.
func (s *Session) participantByKey(key string) (*participantEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.table[key]
	return e, ok
}

// participantBySSRC returns the entry for ssrc, if learned.
func (s *Session) participantBySSRC(ssrc uint32) (*participantEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ssrcIndex[ssrc]
	return e, ok
}

// registerLearnedSSRC indexes an entry by its now-known ssrc.
func (s *Session) registerLearnedSSRC(e *participantEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.p.SSRC != 0 {
		s.ssrcIndex[e.p.SSRC] = e
	}
}

// removeParticipant deletes an entry from both indexes and fires
// OnDetached exactly once.
func (s *Session) removeParticipant(key string) {
	s.mu.Lock()
	e, ok := s.table[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.table, key)
	if e.p.SSRC != 0 {
		delete(s.ssrcIndex, e.p.SSRC)
	}
	s.mu.Unlock()

	if s.opts.OnConnection != nil {
		s.opts.OnConnection.OnDetached(e.p.DeviceID(s.opts.ListenPort))
	}
}

// DeviceName resolves a device ID to its advertised session name and
// ssrc.
func (s *Session) DeviceName(deviceID string) (string, uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.table {
		if e.p.DeviceID(s.opts.ListenPort) == deviceID {
			return e.p.SessionName, e.p.SSRC, true
		}
	}
	return "", 0, false
}

// DeviceInfo summarizes one attached participant for host-facing listings
// such as cmd/rtpmidid's /devices endpoint.
type DeviceInfo struct {
	DeviceID string `json:"device_id"`
	SSRC     uint32 `json:"ssrc"`
	Name     string `json:"session_name"`
	Kind     string `json:"kind"`
	State    string `json:"state"`
}

// ListDevices returns a snapshot of every participant currently in the
// table, connected or mid-handshake.
func (s *Session) ListDevices() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceInfo, 0, len(s.table))
	for _, e := range s.table {
		out = append(out, DeviceInfo{
			DeviceID: e.p.DeviceID(s.opts.ListenPort),
			SSRC:     e.p.SSRC,
			Name:     e.p.SessionName,
			Kind:     e.p.Kind.String(),
			State:    e.p.InviteState.String(),
		})
	}
	return out
}

// ParticipantCount implements metrics.ParticipantsProvider.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

// PacketsSent implements metrics.PacketStatsProvider.
func (s *Session) PacketsSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsSent
}

// PacketsReceived implements metrics.PacketStatsProvider.
func (s *Session) PacketsReceived() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsReceived
}

// PacketsDropped implements metrics.PacketStatsProvider.
func (s *Session) PacketsDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsDropped
}

// BytesSent implements metrics.PacketStatsProvider.
func (s *Session) BytesSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesSent
}

// BytesReceived implements metrics.PacketStatsProvider.
func (s *Session) BytesReceived() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesReceived
}

// ErrorCounts implements metrics.ErrorCounter.
func (s *Session) ErrorCounts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.errorCounts))
	for k, v := range s.errorCounts {
		out[k] = v
	}
	return out
}
