package streamer

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/framestream/limits"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
)

// ErrSequenceOutOfRange is returned by Retransmit for sequence numbers past
// the last whole frame.
var ErrSequenceOutOfRange = errors.New("sequence number out of data range")

// State is the streamer's send/pause flag.
type State int

const (
	// StateSending emits a burst on every tick.
	StateSending State = iota
	// StatePaused skips bursts until a RESUME arrives.
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds the streamer parameters.
type Config struct {
	// Remote is where data packets are sent.
	Remote transport.Endpoint
	// MaxPackets is the send budget. Bursts continue while fewer than
	// MaxPackets have been sent, so the final burst may overshoot it.
	MaxPackets uint64
	// PacketSize is the payload size of each data packet in bytes.
	PacketSize int
	// Interval is the time between send ticks.
	Interval time.Duration
	// BurstSize is the number of packets per tick. Zero means one frame.
	BurstSize int
	// Fill is repeated or truncated to PacketSize to build the payload.
	// Empty means a zeroed payload.
	Fill []byte
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Remote.IsValid() {
		return fmt.Errorf("remote endpoint: %w", transport.ErrInvalidEndpoint)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("send interval must be positive, got %v", c.Interval)
	}
	if c.BurstSize < 0 {
		return fmt.Errorf("burst size cannot be negative, got %d", c.BurstSize)
	}
	if err := limits.ValidatePayloadSize(c.PacketSize); err != nil {
		return fmt.Errorf("packet size: %w", err)
	}
	return nil
}

// Stats is a snapshot of the streamer counters.
type Stats struct {
	State           string `json:"state"`
	Sent            uint64 `json:"sent"`
	Retransmitted   uint64 `json:"retransmitted"`
	Bursts          uint64 `json:"bursts"`
	SendErrors      uint64 `json:"send_errors"`
	NextSequence    uint64 `json:"next_sequence"`
	PausesReceived  uint64 `json:"pauses_received"`
	ResumesReceived uint64 `json:"resumes_received"`
	Unexpected      uint64 `json:"unexpected"`
	Malformed       uint64 `json:"malformed"`
	Running         bool   `json:"running"`
}

// Streamer paces data packets to a remote client in bursts and obeys the
// client's PAUSE/RESUME feedback.
//
// Except for New, every method must run on the loop goroutine. With a
// virtual loop that is the goroutine calling RunFor; with a real loop use
// Loop.Post or Loop.Call.
type Streamer struct {
	cfg      Config
	loop     *scheduler.Loop
	data     transport.Transport
	feedback transport.Transport
	metrics  *metrics.Metrics
	log      *logrus.Entry
	payload  []byte

	task    *scheduler.Task
	started bool

	state         State
	sent          uint64
	retransmitted uint64
	bursts        uint64
	sendErrors    uint64
	nextSeq       uint64
	pauses        uint64
	resumes       uint64
	unexpected    uint64
	malformed     uint64
}

// New creates a streamer. data carries outbound packets; feedback is the
// socket the client sends control packets to. They may be the same
// transport. A nil m records into a private registry.
func New(cfg Config, loop *scheduler.Loop, data, feedback transport.Transport, m *metrics.Metrics) (*Streamer, error) {
	if loop == nil {
		return nil, errors.New("loop cannot be nil")
	}
	if data == nil || feedback == nil {
		return nil, errors.New("data and feedback transports are required")
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = transport.FrameSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid streamer config: %w", err)
	}
	if m == nil {
		m = metrics.New(nil)
	}

	s := &Streamer{
		cfg:      cfg,
		loop:     loop,
		data:     data,
		feedback: feedback,
		metrics:  m,
		payload:  buildPayload(cfg.PacketSize, cfg.Fill),
		log: logrus.WithFields(logrus.Fields{
			"component": "streamer",
			"instance":  uuid.NewString(),
		}),
	}
	s.task = loop.Periodic(cfg.Interval, s.tick)

	s.log.WithFields(logrus.Fields{
		"function":    "New",
		"remote":      cfg.Remote.String(),
		"max_packets": cfg.MaxPackets,
		"packet_size": cfg.PacketSize,
		"interval":    cfg.Interval,
		"burst_size":  cfg.BurstSize,
	}).Info("Streamer created")

	if !limits.FitsMTU(cfg.PacketSize) {
		s.log.WithFields(logrus.Fields{
			"function":     "New",
			"packet_size":  cfg.PacketSize,
			"safe_payload": limits.SafePayload,
		}).Info("Data packets exceed a 1500 byte MTU and will be fragmented")
	}

	return s, nil
}

// buildPayload repeats fill to exactly size bytes.
func buildPayload(size int, fill []byte) []byte {
	payload := make([]byte, size)
	if len(fill) == 0 {
		return payload
	}
	for off := 0; off < size; off += len(fill) {
		copy(payload[off:], fill)
	}
	return payload
}

// Start registers the control handlers and schedules the first send tick
// immediately. Calling Start again has no effect.
func (s *Streamer) Start() {
	if s.started {
		return
	}
	s.started = true

	for _, t := range s.transports() {
		t.RegisterHandler(transport.KindPause, s.handleControl)
		t.RegisterHandler(transport.KindResume, s.handleControl)
		t.SetMalformedHandler(s.handleMalformed)
	}
	if s.feedback != s.data {
		s.feedback.RegisterHandler(transport.KindData, s.handleUnexpected)
	}

	s.metrics.NextSequence.Set(float64(s.nextSeq))
	s.task.Start(0)

	s.log.WithFields(logrus.Fields{
		"function": "Start",
		"local":    addrString(s.data.LocalAddr()),
		"feedback": addrString(s.feedback.LocalAddr()),
		"interval": s.task.Interval(),
	}).Info("Streamer started")
}

// Stop cancels the send task and closes the transports. Pending sends are
// dropped.
func (s *Streamer) Stop() error {
	s.task.Stop()

	var errs []error
	for _, t := range s.transports() {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"function": "Stop",
		"sent":     s.sent,
		"bursts":   s.bursts,
	}).Info("Streamer stopped")

	return errors.Join(errs...)
}

func (s *Streamer) transports() []transport.Transport {
	if s.feedback == s.data {
		return []transport.Transport{s.data}
	}
	return []transport.Transport{s.data, s.feedback}
}

// tick is the periodic send. It reports whether the task should continue.
func (s *Streamer) tick() bool {
	if s.sent >= s.cfg.MaxPackets {
		return false
	}

	if s.state == StatePaused {
		s.metrics.PausedTicks.Inc()
		s.log.WithFields(logrus.Fields{
			"function": "tick",
			"sent":     s.sent,
		}).Debug("Paused, skipping burst")
		return true
	}

	burst := uint64(s.cfg.BurstSize)
	if s.nextSeq+burst-1 > uint64(transport.MaxDataSequence) {
		s.log.WithFields(logrus.Fields{
			"function":      "tick",
			"next_sequence": s.nextSeq,
		}).Warn("Sequence space exhausted, stopping")
		return false
	}

	ts := s.loop.Timestamp()
	for i := uint64(0); i < burst; i++ {
		seq := uint32(s.nextSeq)
		s.nextSeq++
		s.sent++
		if err := s.send(transport.NewDataPacket(seq, ts, s.payload)); err != nil {
			continue
		}
		s.metrics.PacketsSent.Inc()
	}
	s.bursts++
	s.metrics.BurstsSent.Inc()
	s.metrics.NextSequence.Set(float64(s.nextSeq))

	s.log.WithFields(logrus.Fields{
		"function":      "tick",
		"sent":          s.sent,
		"next_sequence": s.nextSeq,
	}).Debug("Burst sent")

	return s.sent < s.cfg.MaxPackets
}

func (s *Streamer) send(packet *transport.Packet) error {
	err := s.data.Send(packet, s.cfg.Remote)
	if err != nil {
		s.sendErrors++
		s.metrics.SendErrors.WithLabelValues(packet.Kind.String()).Inc()
		s.log.WithFields(logrus.Fields{
			"function": "send",
			"sequence": packet.Sequence,
			"remote":   s.cfg.Remote.String(),
			"error":    err.Error(),
		}).Warn("Failed to send packet")
	}
	return err
}

// Retransmit sends a fresh packet carrying seq, independent of the burst
// schedule and the pause state.
func (s *Streamer) Retransmit(seq uint32) error {
	if seq > transport.MaxDataSequence {
		return fmt.Errorf("retransmit %d: %w", seq, ErrSequenceOutOfRange)
	}
	if err := s.send(transport.NewDataPacket(seq, s.loop.Timestamp(), s.payload)); err != nil {
		return fmt.Errorf("retransmit %d: %w", seq, err)
	}
	s.retransmitted++
	s.metrics.PacketsResent.Inc()
	return nil
}

func (s *Streamer) handleControl(packet *transport.Packet, addr net.Addr) error {
	if !packet.Kind.IsControl() {
		return fmt.Errorf("unexpected control kind %s", packet.Kind)
	}
	s.metrics.ControlReceived.WithLabelValues(packet.Kind.String()).Inc()

	previous := s.state
	if packet.Kind == transport.KindPause {
		s.pauses++
		s.state = StatePaused
		s.metrics.StreamerPaused.Set(1)
	} else {
		s.resumes++
		s.state = StateSending
		s.metrics.StreamerPaused.Set(0)
	}

	if previous != s.state {
		s.log.WithFields(logrus.Fields{
			"function": "handleControl",
			"signal":   packet.Kind.String(),
			"from":     addrString(addr),
			"state":    s.state.String(),
		}).Info("Streamer state changed")
	}
	return nil
}

func (s *Streamer) handleUnexpected(packet *transport.Packet, addr net.Addr) error {
	s.unexpected++
	s.log.WithFields(logrus.Fields{
		"function": "handleUnexpected",
		"kind":     packet.Kind.String(),
		"from":     addrString(addr),
	}).Debug("Ignoring unexpected packet on feedback socket")
	return nil
}

func (s *Streamer) handleMalformed(data []byte, addr net.Addr, err error) {
	s.malformed++
	s.metrics.MalformedDatagrams.Inc()
}

// State returns the current send/pause state.
func (s *Streamer) State() State {
	return s.state
}

// Stats returns a snapshot of the counters.
func (s *Streamer) Stats() Stats {
	return Stats{
		State:           s.state.String(),
		Sent:            s.sent,
		Retransmitted:   s.retransmitted,
		Bursts:          s.bursts,
		SendErrors:      s.sendErrors,
		NextSequence:    s.nextSeq,
		PausesReceived:  s.pauses,
		ResumesReceived: s.resumes,
		Unexpected:      s.unexpected,
		Malformed:       s.malformed,
		Running:         s.task.Running(),
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
