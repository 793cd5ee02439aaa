// Package rtpmidi implements an AppleMIDI / RTP-MIDI (RFC 6295) session
// layer: invitation handshake, clock synchronization, receiver feedback,
// timeouts, and the RTP-MIDI command-list wire codec. A host process
// drives a Session by calling Tick at a fixed cadence (see cmd/rtpmidid
// for a reference driver) and receives MIDI events and connection
// lifecycle notifications through the callbacks passed to New.
package rtpmidi

import (
	"log/slog"

	"github.com/go-rtpmidi/rtpmidi/internal/midicmd"
	"github.com/go-rtpmidi/rtpmidi/internal/session"
)

// Re-exported so callers never need to import internal/session directly.
type (
	// ErrorKind is the closed, non-fatal error taxonomy delivered through
	// an OnError listener.
	ErrorKind = session.ErrorKind
	// MIDIListener receives one callback per decoded MIDI event.
	MIDIListener = session.MIDIListener
	// ConnectionListener receives attach/detach notifications.
	ConnectionListener = session.ConnectionListener
	// ErrorListener receives the optional non-fatal error stream.
	ErrorListener = session.ErrorListener
	// Event is a single decoded or to-be-encoded MIDI command.
	Event = midicmd.Event
	// DeviceInfo summarizes one attached participant.
	DeviceInfo = session.DeviceInfo
)

const (
	BufferFull                      = session.BufferFull
	Parse                           = session.Parse
	UnexpectedParse                 = session.UnexpectedParse
	TooManyParticipants             = session.TooManyParticipants
	ParticipantNotFound             = session.ParticipantNotFound
	ListenerTimeOut                 = session.ListenerTimeOut
	MaxAttempts                     = session.MaxAttempts
	NoResponseFromConnectionRequest = session.NoResponseFromConnectionRequest
	SendPacketsDropped              = session.SendPacketsDropped
	ReceivedPacketsDropped          = session.ReceivedPacketsDropped
	RateLimited                     = session.RateLimited
)

// Options configures a new Session.
type Options struct {
	// SessionName is advertised to peers during the invitation handshake.
	SessionName string
	// ListenPort is the control port; the data port is ListenPort+1.
	ListenPort int

	OnMIDI       MIDIListener
	OnConnection ConnectionListener
	OnError      ErrorListener

	// JournalEnabled turns on the RTP-MIDI recovery journal on outbound packets. Default false.
	JournalEnabled bool

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Session is an AppleMIDI/RTP-MIDI session: the invitation handshake
// state machine, clock sync, receiver feedback, and the participant
// table, all driven by repeated calls to Tick.
type Session struct {
	inner *session.Session
}

// New constructs a Session. Call Start to open its sockets.
func New(opts Options) *Session {
	return &Session{inner: session.New(session.Options{
		SessionName:    opts.SessionName,
		ListenPort:     opts.ListenPort,
		OnMIDI:         opts.OnMIDI,
		OnConnection:   opts.OnConnection,
		OnError:        opts.OnError,
		JournalEnabled: opts.JournalEnabled,
		Logger:         opts.Logger,
	})}
}

// Start opens the control and data UDP sockets.
func (s *Session) Start() error { return s.inner.Start() }

// Stop closes both sockets.
func (s *Session) Stop() error { return s.inner.Stop() }

// IsStarted reports whether Start has been called without a matching Stop.
func (s *Session) IsStarted() bool { return s.inner.IsStarted() }

// Tick drives one iteration of the engine. Call it at a fixed cadence;
// it never blocks on the network.
func (s *Session) Tick() { s.inner.Tick() }

// ConnectToListener invites a remote AppleMIDI listener at host:port.
// The actual invitation is sent on the next Tick.
func (s *Session) ConnectToListener(host string, port int) error {
	return s.inner.ConnectToListener(host, port)
}

// DeviceName resolves a device ID to its advertised session name and
// ssrc, reporting ok=false if no participant in the table (connected or
// mid-handshake) has that device ID.
func (s *Session) DeviceName(deviceID string) (name string, ssrc uint32, ok bool) {
	return s.inner.DeviceName(deviceID)
}

func (s *Session) SendNoteOn(deviceID string, channel uint8, note, velocity byte) error {
	return s.inner.SendNoteOn(deviceID, channel, note, velocity)
}

func (s *Session) SendNoteOff(deviceID string, channel uint8, note, velocity byte) error {
	return s.inner.SendNoteOff(deviceID, channel, note, velocity)
}

func (s *Session) SendPolyAftertouch(deviceID string, channel uint8, note, pressure byte) error {
	return s.inner.SendPolyAftertouch(deviceID, channel, note, pressure)
}

func (s *Session) SendControlChange(deviceID string, channel uint8, controller, value byte) error {
	return s.inner.SendControlChange(deviceID, channel, controller, value)
}

func (s *Session) SendProgramChange(deviceID string, channel uint8, program byte) error {
	return s.inner.SendProgramChange(deviceID, channel, program)
}

func (s *Session) SendChannelAftertouch(deviceID string, channel uint8, pressure byte) error {
	return s.inner.SendChannelAftertouch(deviceID, channel, pressure)
}

func (s *Session) SendPitchWheel(deviceID string, channel uint8, amount uint16) error {
	return s.inner.SendPitchWheel(deviceID, channel, amount)
}

func (s *Session) SendSystemExclusive(deviceID string, data []byte) error {
	return s.inner.SendSystemExclusive(deviceID, data)
}

func (s *Session) SendTimeCodeQuarterFrame(deviceID string, value byte) error {
	return s.inner.SendTimeCodeQuarterFrame(deviceID, value)
}

func (s *Session) SendSongSelect(deviceID string, song byte) error {
	return s.inner.SendSongSelect(deviceID, song)
}

func (s *Session) SendSongPositionPointer(deviceID string, position uint16) error {
	return s.inner.SendSongPositionPointer(deviceID, position)
}

func (s *Session) SendTuneRequest(deviceID string) error { return s.inner.SendTuneRequest(deviceID) }
func (s *Session) SendTimingClock(deviceID string) error { return s.inner.SendTimingClock(deviceID) }
func (s *Session) SendStart(deviceID string) error       { return s.inner.SendStart(deviceID) }
func (s *Session) SendContinue(deviceID string) error    { return s.inner.SendContinue(deviceID) }
func (s *Session) SendStop(deviceID string) error        { return s.inner.SendStop(deviceID) }
func (s *Session) SendActiveSensing(deviceID string) error {
	return s.inner.SendActiveSensing(deviceID)
}
func (s *Session) SendReset(deviceID string) error { return s.inner.SendReset(deviceID) }

// ParticipantCount, PacketsSent/Received/Dropped, BytesSent/Received, and
// ErrorCounts implement the provider interfaces internal/metrics.Collector
// expects, so a *Session can be passed directly to metrics.NewCollector.

// ListDevices returns a snapshot of every currently attached (or
// mid-handshake) participant.
func (s *Session) ListDevices() []DeviceInfo { return s.inner.ListDevices() }

func (s *Session) ParticipantCount() int { return s.inner.ParticipantCount() }
func (s *Session) PacketsSent() uint64   { return s.inner.PacketsSent() }
func (s *Session) PacketsReceived() uint64 { return s.inner.PacketsReceived() }
func (s *Session) PacketsDropped() uint64  { return s.inner.PacketsDropped() }
func (s *Session) BytesSent() uint64       { return s.inner.BytesSent() }
func (s *Session) BytesReceived() uint64   { return s.inner.BytesReceived() }
func (s *Session) ErrorCounts() map[string]uint64 { return s.inner.ErrorCounts() }
