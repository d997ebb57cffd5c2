package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Durations are strings such as "50ms".
type fileConfig struct {
	Streamer struct {
		Listen         string `toml:"listen"`
		FeedbackListen string `toml:"feedback_listen"`
		Remote         string `toml:"remote"`
		MaxPackets     uint64 `toml:"max_packets"`
		PacketSize     int    `toml:"packet_size"`
		Interval       string `toml:"interval"`
		Fill           string `toml:"fill"`
	} `toml:"streamer"`
	Client struct {
		Listen              string `toml:"listen"`
		FeedbackRemote      string `toml:"feedback_remote"`
		GenerateInterval    string `toml:"generate_interval"`
		ConsumeInterval     string `toml:"consume_interval"`
		FrameBufferCapacity int    `toml:"frame_buffer_capacity"`
		PauseThreshold      int    `toml:"pause_threshold"`
		ResumeThreshold     int    `toml:"resume_threshold"`
		MaxPendingFrames    int    `toml:"max_pending_frames"`
	} `toml:"client"`
	Sim struct {
		Duration      string  `toml:"duration"`
		LossRate      float64 `toml:"loss_rate"`
		DuplicateRate float64 `toml:"duplicate_rate"`
		MinDelay      string  `toml:"min_delay"`
		MaxDelay      string  `toml:"max_delay"`
		Seed          int64   `toml:"seed"`
	} `toml:"sim"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Status struct {
		Listen string `toml:"listen"`
	} `toml:"status"`
	LegacyControl bool `toml:"legacy_control"`
}

// Load reads path and overlays every key it defines onto Default. Keys the
// file leaves out keep their defaults. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	o := overlay{meta: meta}

	o.str(&cfg.Streamer.Listen, raw.Streamer.Listen, "streamer", "listen")
	o.str(&cfg.Streamer.FeedbackListen, raw.Streamer.FeedbackListen, "streamer", "feedback_listen")
	o.str(&cfg.Streamer.Remote, raw.Streamer.Remote, "streamer", "remote")
	if meta.IsDefined("streamer", "max_packets") {
		cfg.Streamer.MaxPackets = raw.Streamer.MaxPackets
	}
	if meta.IsDefined("streamer", "packet_size") {
		cfg.Streamer.PacketSize = raw.Streamer.PacketSize
	}
	o.duration(&cfg.Streamer.Interval, raw.Streamer.Interval, "streamer", "interval")
	if meta.IsDefined("streamer", "fill") {
		cfg.Streamer.Fill = raw.Streamer.Fill
	}

	o.str(&cfg.Client.Listen, raw.Client.Listen, "client", "listen")
	o.str(&cfg.Client.FeedbackRemote, raw.Client.FeedbackRemote, "client", "feedback_remote")
	o.duration(&cfg.Client.GenerateInterval, raw.Client.GenerateInterval, "client", "generate_interval")
	o.duration(&cfg.Client.ConsumeInterval, raw.Client.ConsumeInterval, "client", "consume_interval")
	o.integer(&cfg.Client.FrameBufferCapacity, raw.Client.FrameBufferCapacity, "client", "frame_buffer_capacity")
	o.integer(&cfg.Client.PauseThreshold, raw.Client.PauseThreshold, "client", "pause_threshold")
	o.integer(&cfg.Client.ResumeThreshold, raw.Client.ResumeThreshold, "client", "resume_threshold")
	o.integer(&cfg.Client.MaxPendingFrames, raw.Client.MaxPendingFrames, "client", "max_pending_frames")

	o.duration(&cfg.Sim.Duration, raw.Sim.Duration, "sim", "duration")
	if meta.IsDefined("sim", "loss_rate") {
		cfg.Sim.LossRate = raw.Sim.LossRate
	}
	if meta.IsDefined("sim", "duplicate_rate") {
		cfg.Sim.DuplicateRate = raw.Sim.DuplicateRate
	}
	o.duration(&cfg.Sim.MinDelay, raw.Sim.MinDelay, "sim", "min_delay")
	o.duration(&cfg.Sim.MaxDelay, raw.Sim.MaxDelay, "sim", "max_delay")
	if meta.IsDefined("sim", "seed") {
		cfg.Sim.Seed = raw.Sim.Seed
	}

	o.str(&cfg.Log.Level, raw.Log.Level, "log", "level")
	o.str(&cfg.Log.Format, raw.Log.Format, "log", "format")
	o.str(&cfg.Status.Listen, raw.Status.Listen, "status", "listen")

	if meta.IsDefined("legacy_control") {
		cfg.LegacyControl = raw.LegacyControl
	}

	if o.err != nil {
		return nil, fmt.Errorf("load config: %w", o.err)
	}
	return cfg, nil
}

// overlay copies defined keys and keeps the first conversion error.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) str(dst *string, v string, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func (o *overlay) integer(dst *int, v int, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) duration(dst *time.Duration, v string, key ...string) {
	if !o.meta.IsDefined(key...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		if o.err == nil {
			o.err = fmt.Errorf("%s: %w", strings.Join(key, "."), err)
		}
		return
	}
	*dst = d
}
