package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
)

// Default buffer parameters.
const (
	DefaultFrameBufferCapacity = 40
	DefaultPauseThreshold      = 30
	DefaultResumeThreshold     = 5
	DefaultMaxPendingFrames    = 64
)

// Config holds the client parameters.
type Config struct {
	// FeedbackRemote is the streamer endpoint that receives PAUSE/RESUME.
	FeedbackRemote transport.Endpoint
	// GenerateInterval is the period of the reassembly cycle.
	GenerateInterval time.Duration
	// ConsumeInterval is the playback period, one frame per cycle.
	ConsumeInterval time.Duration
	// FrameBufferCapacity bounds the number of complete frames held.
	FrameBufferCapacity int
	// PauseThreshold: more ready frames than this after a consume sends PAUSE.
	PauseThreshold int
	// ResumeThreshold: fewer ready frames than this after a consume sends RESUME.
	ResumeThreshold int
	// MaxPendingFrames bounds the partial frames kept. Zero disables the bound.
	MaxPendingFrames int
}

// DefaultConfig returns the buffer defaults with the given feedback target.
func DefaultConfig(feedback transport.Endpoint) Config {
	return Config{
		FeedbackRemote:      feedback,
		GenerateInterval:    time.Second / 20,
		ConsumeInterval:     time.Second / 60,
		FrameBufferCapacity: DefaultFrameBufferCapacity,
		PauseThreshold:      DefaultPauseThreshold,
		ResumeThreshold:     DefaultResumeThreshold,
		MaxPendingFrames:    DefaultMaxPendingFrames,
	}
}

// Validate checks the intervals and that 0 <= resume < pause < capacity.
func (c Config) Validate() error {
	if !c.FeedbackRemote.IsValid() {
		return fmt.Errorf("feedback endpoint: %w", transport.ErrInvalidEndpoint)
	}
	if c.GenerateInterval <= 0 || c.ConsumeInterval <= 0 {
		return fmt.Errorf("intervals must be positive, got generate=%v consume=%v",
			c.GenerateInterval, c.ConsumeInterval)
	}
	if c.FrameBufferCapacity <= 0 {
		return fmt.Errorf("frame buffer capacity must be positive, got %d", c.FrameBufferCapacity)
	}
	if c.ResumeThreshold < 0 || c.ResumeThreshold >= c.PauseThreshold {
		return fmt.Errorf("resume threshold %d must be in [0, pause threshold %d)",
			c.ResumeThreshold, c.PauseThreshold)
	}
	if c.PauseThreshold >= c.FrameBufferCapacity {
		return fmt.Errorf("pause threshold %d must be below capacity %d",
			c.PauseThreshold, c.FrameBufferCapacity)
	}
	if c.MaxPendingFrames < 0 {
		return fmt.Errorf("max pending frames cannot be negative, got %d", c.MaxPendingFrames)
	}
	return nil
}

// PlaybackHandler receives each frame as it is consumed.
type PlaybackHandler func(*Frame)

// Stats is a snapshot of the client counters.
type Stats struct {
	CurrentFrame    uint32           `json:"current_frame"`
	Ready           int              `json:"ready"`
	Pending         int              `json:"pending"`
	PacketsReceived uint64           `json:"packets_received"`
	FramesPlayed    uint64           `json:"frames_played"`
	Underruns       uint64           `json:"underruns"`
	PausesSent      uint64           `json:"pauses_sent"`
	ResumesSent     uint64           `json:"resumes_sent"`
	SendErrors      uint64           `json:"send_errors"`
	Malformed       uint64           `json:"malformed"`
	Reassembly      ReassemblerStats `json:"reassembly"`
}

// Status is the snapshot published by the status server.
type Status struct {
	Instance     string   `json:"instance"`
	Running      bool     `json:"running"`
	ReadyIndices []uint32 `json:"ready_indices"`
	Stats        Stats    `json:"stats"`
}

// Client receives data packets, reassembles them into frames, plays one
// frame per consume cycle and sends PAUSE/RESUME feedback to the streamer.
//
// Except for New, every method must run on the loop goroutine.
type Client struct {
	cfg      Config
	loop     *scheduler.Loop
	conn     transport.Transport
	metrics  *metrics.Metrics
	reasm    *Reassembler
	id       string
	log      *logrus.Entry
	playback PlaybackHandler

	generateTask *scheduler.Task
	consumeTask  *scheduler.Task
	started      bool

	curFrame   uint32
	received   uint64
	played     uint64
	underruns  uint64
	pauses     uint64
	resumes    uint64
	sendErrors uint64
	malformed  uint64
}

// New creates a client that receives on conn and sends feedback from it.
// A nil m records into a private registry.
func New(cfg Config, loop *scheduler.Loop, conn transport.Transport, m *metrics.Metrics) (*Client, error) {
	if loop == nil {
		return nil, errors.New("loop cannot be nil")
	}
	if conn == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if m == nil {
		m = metrics.New(nil)
	}

	id := uuid.NewString()
	c := &Client{
		cfg:     cfg,
		loop:    loop,
		conn:    conn,
		metrics: m,
		reasm:   NewReassembler(cfg.FrameBufferCapacity, cfg.MaxPendingFrames, m),
		id:      id,
		log: logrus.WithFields(logrus.Fields{
			"component": "client",
			"instance":  id,
		}),
	}
	c.generateTask = loop.Periodic(cfg.GenerateInterval, func() bool {
		c.Generate()
		return true
	})
	c.consumeTask = loop.Periodic(cfg.ConsumeInterval, func() bool {
		c.Consume()
		return true
	})

	c.log.WithFields(logrus.Fields{
		"function":          "New",
		"feedback":          cfg.FeedbackRemote.String(),
		"capacity":          cfg.FrameBufferCapacity,
		"pause_threshold":   cfg.PauseThreshold,
		"resume_threshold":  cfg.ResumeThreshold,
		"generate_interval": cfg.GenerateInterval,
		"consume_interval":  cfg.ConsumeInterval,
	}).Info("Client created")

	return c, nil
}

// OnPlayback sets the handler that receives consumed frames.
func (c *Client) OnPlayback(handler PlaybackHandler) {
	c.playback = handler
}

// Start registers the data handler and schedules the generate and consume
// cycles immediately. Calling Start again has no effect.
func (c *Client) Start() {
	if c.started {
		return
	}
	c.started = true

	c.conn.RegisterHandler(transport.KindData, c.handleData)
	c.conn.SetMalformedHandler(c.handleMalformed)
	c.generateTask.Start(0)
	c.consumeTask.Start(0)

	c.log.WithFields(logrus.Fields{
		"function":          "Start",
		"local":             addrString(c.conn.LocalAddr()),
		"generate_interval": c.generateTask.Interval(),
		"consume_interval":  c.consumeTask.Interval(),
	}).Info("Client started")
}

// Stop cancels both cycles and closes the transport.
func (c *Client) Stop() error {
	c.generateTask.Stop()
	c.consumeTask.Stop()
	err := c.conn.Close()

	c.log.WithFields(logrus.Fields{
		"function":      "Stop",
		"current_frame": c.curFrame,
		"played":        c.played,
		"underruns":     c.underruns,
	}).Info("Client stopped")

	return err
}

func (c *Client) handleData(packet *transport.Packet, addr net.Addr) error {
	c.received++
	c.metrics.PacketsReceived.Inc()
	if transit := c.loop.Elapsed(packet.Timestamp); transit >= 0 {
		c.metrics.TransitSeconds.Observe(transit.Seconds())
	}

	if dup := c.reasm.Insert(packet, c.curFrame); dup {
		c.log.WithFields(logrus.Fields{
			"function": "handleData",
			"sequence": packet.Sequence,
			"from":     addrString(addr),
		}).Debug("Duplicate packet")
	}
	return nil
}

func (c *Client) handleMalformed(data []byte, addr net.Addr, err error) {
	c.malformed++
	c.metrics.MalformedDatagrams.Inc()
}

// Generate runs one reassembly cycle against the current frame.
func (c *Client) Generate() GenerateResult {
	res := c.reasm.Generate(c.curFrame)

	if res.Promoted > 0 || res.Overflow > 0 || res.Stale > 0 || res.StalePartial > 0 {
		c.log.WithFields(logrus.Fields{
			"function":      "Generate",
			"current_frame": c.curFrame,
			"promoted":      res.Promoted,
			"overflow":      res.Overflow,
			"stale":         res.Stale,
			"stale_partial": res.StalePartial,
			"ready":         res.ReadyAfter,
		}).Debug("Generate cycle")
	}
	return res
}

// Reassembler exposes the packet and frame buffers.
func (c *Client) Reassembler() *Reassembler {
	return c.reasm
}

// CurrentFrame returns the next frame index the consumer will play.
func (c *Client) CurrentFrame() uint32 {
	return c.curFrame
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		CurrentFrame:    c.curFrame,
		Ready:           c.reasm.Ready(),
		Pending:         c.reasm.Pending(),
		PacketsReceived: c.received,
		FramesPlayed:    c.played,
		Underruns:       c.underruns,
		PausesSent:      c.pauses,
		ResumesSent:     c.resumes,
		SendErrors:      c.sendErrors,
		Malformed:       c.malformed,
		Reassembly:      c.reasm.Stats(),
	}
}

// Status returns the snapshot published by the status server.
func (c *Client) Status() Status {
	return Status{
		Instance:     c.id,
		Running:      c.consumeTask.Running(),
		ReadyIndices: c.reasm.ReadyIndices(),
		Stats:        c.Stats(),
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
