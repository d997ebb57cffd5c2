// Package config assembles framestream settings from defaults, an optional
// TOML file and FRAMESTREAM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/framestream/client"
	"github.com/opd-ai/framestream/streamer"
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
)

// StreamerConfig configures the sending side.
type StreamerConfig struct {
	// Listen is the local data socket.
	Listen string
	// FeedbackListen is where PAUSE/RESUME arrive.
	FeedbackListen string
	// Remote is the client data endpoint.
	Remote     string
	MaxPackets uint64
	PacketSize int
	Interval   time.Duration
	Fill       string
}

// ClientConfig configures the receiving side.
type ClientConfig struct {
	Listen              string
	FeedbackRemote      string
	GenerateInterval    time.Duration
	ConsumeInterval     time.Duration
	FrameBufferCapacity int
	PauseThreshold      int
	ResumeThreshold     int
	MaxPendingFrames    int
}

// SimConfig configures the in-process simulation.
type SimConfig struct {
	Duration      time.Duration
	LossRate      float64
	DuplicateRate float64
	MinDelay      time.Duration
	MaxDelay      time.Duration
	Seed          int64
}

// LogConfig configures the global logrus logger.
type LogConfig struct {
	Level  string
	Format string
}

// StatusConfig configures the HTTP status server. An empty Listen disables it.
type StatusConfig struct {
	Listen string
}

// Config is the complete framestream configuration.
type Config struct {
	Streamer StreamerConfig
	Client   ClientConfig
	Sim      SimConfig
	Log      LogConfig
	Status   StatusConfig
	// LegacyControl decodes data packets carrying the reserved sequence
	// values as PAUSE/RESUME. The header layout is unchanged.
	LegacyControl bool
}

// Default returns the settings of the reference scenario: a 1/90 s send
// interval, 1472 byte payloads, a 1/60 s consume and a 1/20 s generate
// cycle, and a ten second simulated run.
func Default() *Config {
	return &Config{
		Streamer: StreamerConfig{
			Listen:         "0.0.0.0:0",
			FeedbackListen: "0.0.0.0:9010",
			Remote:         "127.0.0.1:9009",
			MaxPackets:     4294967295,
			PacketSize:     1472,
			Interval:       time.Second / 90,
		},
		Client: ClientConfig{
			Listen:              "0.0.0.0:9009",
			FeedbackRemote:      "127.0.0.1:9010",
			GenerateInterval:    time.Second / 20,
			ConsumeInterval:     time.Second / 60,
			FrameBufferCapacity: client.DefaultFrameBufferCapacity,
			PauseThreshold:      client.DefaultPauseThreshold,
			ResumeThreshold:     client.DefaultResumeThreshold,
			MaxPendingFrames:    client.DefaultMaxPendingFrames,
		},
		Sim: SimConfig{
			Duration: 10 * time.Second,
			MinDelay: 2 * time.Millisecond,
			MaxDelay: 2 * time.Millisecond,
			Seed:     1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks every section. It does not resolve host names.
func (c *Config) Validate() error {
	var errs []error

	if c.Streamer.Interval <= 0 {
		errs = append(errs, fmt.Errorf("streamer.interval must be positive"))
	}
	if c.Streamer.PacketSize < 0 {
		errs = append(errs, fmt.Errorf("streamer.packet_size cannot be negative"))
	}

	cl := c.Client
	if cl.GenerateInterval <= 0 || cl.ConsumeInterval <= 0 {
		errs = append(errs, fmt.Errorf("client intervals must be positive"))
	}
	if cl.FrameBufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("client.frame_buffer_capacity must be positive"))
	}
	if cl.ResumeThreshold < 0 || cl.ResumeThreshold >= cl.PauseThreshold {
		errs = append(errs, fmt.Errorf("client.resume_threshold %d must be in [0, pause_threshold %d)",
			cl.ResumeThreshold, cl.PauseThreshold))
	}
	if cl.PauseThreshold >= cl.FrameBufferCapacity {
		errs = append(errs, fmt.Errorf("client.pause_threshold %d must be below frame_buffer_capacity %d",
			cl.PauseThreshold, cl.FrameBufferCapacity))
	}
	if cl.MaxPendingFrames < 0 {
		errs = append(errs, fmt.Errorf("client.max_pending_frames cannot be negative"))
	}

	if c.Sim.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sim.duration must be positive"))
	}
	if err := c.SimNetwork().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sim: %w", err))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SimNetwork returns the simulated network impairments.
func (c *Config) SimNetwork() transport.SimConfig {
	return transport.SimConfig{
		LossRate:      c.Sim.LossRate,
		DuplicateRate: c.Sim.DuplicateRate,
		MinDelay:      c.Sim.MinDelay,
		MaxDelay:      c.Sim.MaxDelay,
		Seed:          c.Sim.Seed,
		Options:       c.ParseOptions(),
	}
}

// ParseOptions returns the datagram decoding options.
func (c *Config) ParseOptions() transport.ParseOptions {
	return transport.ParseOptions{LegacyControl: c.LegacyControl}
}

// StreamerOptions resolves the streamer section.
func (c *Config) StreamerOptions() (streamer.Config, error) {
	remote, err := transport.ParseEndpoint(c.Streamer.Remote)
	if err != nil {
		return streamer.Config{}, fmt.Errorf("streamer.remote: %w", err)
	}
	return streamer.Config{
		Remote:     remote,
		MaxPackets: c.Streamer.MaxPackets,
		PacketSize: c.Streamer.PacketSize,
		Interval:   c.Streamer.Interval,
		Fill:       []byte(c.Streamer.Fill),
	}, nil
}

// ClientOptions resolves the client section.
func (c *Config) ClientOptions() (client.Config, error) {
	feedback, err := transport.ParseEndpoint(c.Client.FeedbackRemote)
	if err != nil {
		return client.Config{}, fmt.Errorf("client.feedback_remote: %w", err)
	}
	return client.Config{
		FeedbackRemote:      feedback,
		GenerateInterval:    c.Client.GenerateInterval,
		ConsumeInterval:     c.Client.ConsumeInterval,
		FrameBufferCapacity: c.Client.FrameBufferCapacity,
		PauseThreshold:      c.Client.PauseThreshold,
		ResumeThreshold:     c.Client.ResumeThreshold,
		MaxPendingFrames:    c.Client.MaxPendingFrames,
	}, nil
}

// ConfigureLogging applies the log section to the global logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(c.Log.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}
