package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ParticipantsProvider exposes the current size of the session's
// participant table.
type ParticipantsProvider interface {
	ParticipantCount() int
}

// PacketStatsProvider exposes aggregate counters accumulated across the
// lifetime of the session. Kept deliberately free of any per-peer label so
// cardinality never grows with the number of remote devices.
type PacketStatsProvider interface {
	PacketsSent() uint64
	PacketsReceived() uint64
	PacketsDropped() uint64
	BytesSent() uint64
	BytesReceived() uint64
}

// ErrorCounter exposes the running per-kind error tally recorded by the
// session's exception listener.
type ErrorCounter interface {
	ErrorCounts() map[string]uint64
}

// Collector is a prometheus.Collector that gathers rtpmidi session metrics
// at scrape time.
type Collector struct {
	participants ParticipantsProvider
	packets      PacketStatsProvider
	errors       ErrorCounter
	startTime    time.Time

	participantsDesc *prometheus.Desc
	packetsDesc      *prometheus.Desc
	bytesDesc        *prometheus.Desc
	errorsDesc       *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(participants ParticipantsProvider, packets PacketStatsProvider, errors ErrorCounter, startTime time.Time) *Collector {
	return &Collector{
		participants: participants,
		packets:      packets,
		errors:       errors,
		startTime:    startTime,

		participantsDesc: prometheus.NewDesc(
			"rtpmidi_participants",
			"Number of participants currently in the session table",
			nil, nil,
		),
		packetsDesc: prometheus.NewDesc(
			"rtpmidi_packets_total",
			"Total RTP-MIDI packets processed",
			[]string{"direction"}, nil,
		),
		bytesDesc: prometheus.NewDesc(
			"rtpmidi_bytes_total",
			"Total RTP-MIDI bytes processed",
			[]string{"direction"}, nil,
		),
		errorsDesc: prometheus.NewDesc(
			"rtpmidi_errors_total",
			"Total session errors by kind",
			[]string{"kind"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"rtpmidi_uptime_seconds",
			"Seconds since the session was started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.participantsDesc
	ch <- c.packetsDesc
	ch <- c.bytesDesc
	ch <- c.errorsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.participants != nil {
		ch <- prometheus.MustNewConstMetric(
			c.participantsDesc, prometheus.GaugeValue,
			float64(c.participants.ParticipantCount()),
		)
	}

	if c.packets != nil {
		ch <- prometheus.MustNewConstMetric(
			c.packetsDesc, prometheus.CounterValue,
			float64(c.packets.PacketsSent()), "sent",
		)
		ch <- prometheus.MustNewConstMetric(
			c.packetsDesc, prometheus.CounterValue,
			float64(c.packets.PacketsReceived()), "received",
		)
		ch <- prometheus.MustNewConstMetric(
			c.packetsDesc, prometheus.CounterValue,
			float64(c.packets.PacketsDropped()), "dropped",
		)
		ch <- prometheus.MustNewConstMetric(
			c.bytesDesc, prometheus.CounterValue,
			float64(c.packets.BytesSent()), "sent",
		)
		ch <- prometheus.MustNewConstMetric(
			c.bytesDesc, prometheus.CounterValue,
			float64(c.packets.BytesReceived()), "received",
		)
	}

	if c.errors != nil {
		for kind, count := range c.errors.ErrorCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.errorsDesc, prometheus.CounterValue,
				float64(count), kind,
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
