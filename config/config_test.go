package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second/90, cfg.Streamer.Interval)
	assert.Equal(t, time.Second/60, cfg.Client.ConsumeInterval)
	assert.Equal(t, time.Second/20, cfg.Client.GenerateInterval)
	assert.Equal(t, 40, cfg.Client.FrameBufferCapacity)
	assert.Equal(t, 30, cfg.Client.PauseThreshold)
	assert.Equal(t, 5, cfg.Client.ResumeThreshold)
	assert.Equal(t, 10*time.Second, cfg.Sim.Duration)
	assert.False(t, cfg.LegacyControl)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resume equals pause", func(c *Config) { c.Client.ResumeThreshold = c.Client.PauseThreshold }},
		{"resume above pause", func(c *Config) { c.Client.ResumeThreshold = 35 }},
		{"pause at capacity", func(c *Config) { c.Client.PauseThreshold = 40 }},
		{"zero capacity", func(c *Config) { c.Client.FrameBufferCapacity = 0 }},
		{"zero streamer interval", func(c *Config) { c.Streamer.Interval = 0 }},
		{"negative packet size", func(c *Config) { c.Streamer.PacketSize = -1 }},
		{"zero consume interval", func(c *Config) { c.Client.ConsumeInterval = 0 }},
		{"loss above one", func(c *Config) { c.Sim.LossRate = 1.5 }},
		{"inverted delays", func(c *Config) { c.Sim.MinDelay = time.Second }},
		{"zero duration", func(c *Config) { c.Sim.Duration = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	cfg, err := Load("testdata/framestream.toml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "10.1.2.4:9009", cfg.Streamer.Remote)
	assert.Equal(t, 512, cfg.Streamer.PacketSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Streamer.Interval)
	assert.Equal(t, "abc", cfg.Streamer.Fill)
	assert.Equal(t, 10*time.Millisecond, cfg.Client.ConsumeInterval)
	assert.Equal(t, 25, cfg.Client.PauseThreshold)
	assert.Equal(t, 3, cfg.Client.ResumeThreshold)
	assert.Equal(t, 0.02, cfg.Sim.LossRate)
	assert.Equal(t, 8*time.Millisecond, cfg.Sim.MaxDelay)
	assert.Equal(t, int64(99), cfg.Sim.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Status.Listen)
	assert.True(t, cfg.LegacyControl)
	assert.True(t, cfg.SimNetwork().Options.LegacyControl)

	// Untouched keys keep their defaults.
	def := Default()
	assert.Equal(t, def.Streamer.MaxPackets, cfg.Streamer.MaxPackets)
	assert.Equal(t, def.Client.GenerateInterval, cfg.Client.GenerateInterval)
	assert.Equal(t, def.Client.FrameBufferCapacity, cfg.Client.FrameBufferCapacity)
	assert.Equal(t, def.Sim.MinDelay, cfg.Sim.MinDelay)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/missing.toml")
	assert.Error(t, err)

	_, err = Load("testdata/unknown_key.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streamer.burst")

	_, err = Load("testdata/bad_duration.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.generate_interval")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FRAMESTREAM_STREAMER_REMOTE", "192.0.2.1:7000")
	t.Setenv("FRAMESTREAM_PACKET_SIZE", "256")
	t.Setenv("FRAMESTREAM_CONSUME_INTERVAL", "5ms")
	t.Setenv("FRAMESTREAM_LOSS_RATE", "0.1")
	t.Setenv("FRAMESTREAM_LEGACY_CONTROL", "true")
	t.Setenv("FRAMESTREAM_SEED", "12")
	t.Setenv("FRAMESTREAM_MAX_PACKETS", "1000")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, "192.0.2.1:7000", cfg.Streamer.Remote)
	assert.Equal(t, 256, cfg.Streamer.PacketSize)
	assert.Equal(t, 5*time.Millisecond, cfg.Client.ConsumeInterval)
	assert.Equal(t, 0.1, cfg.Sim.LossRate)
	assert.True(t, cfg.LegacyControl)
	assert.Equal(t, int64(12), cfg.Sim.Seed)
	assert.Equal(t, uint64(1000), cfg.Streamer.MaxPackets)
}

func TestApplyEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("FRAMESTREAM_PACKET_SIZE", "huge")
	t.Setenv("FRAMESTREAM_FRAME_BUFFER_CAPACITY", "0")
	t.Setenv("FRAMESTREAM_LOSS_RATE", "2")
	t.Setenv("FRAMESTREAM_CONSUME_INTERVAL", "-1s")
	t.Setenv("FRAMESTREAM_LEGACY_CONTROL", "maybe")
	t.Setenv("FRAMESTREAM_LOG_LEVEL", "   ")

	cfg := Default()
	ApplyEnv(cfg)

	def := Default()
	assert.Equal(t, def.Streamer.PacketSize, cfg.Streamer.PacketSize)
	assert.Equal(t, def.Client.FrameBufferCapacity, cfg.Client.FrameBufferCapacity)
	assert.Equal(t, def.Sim.LossRate, cfg.Sim.LossRate)
	assert.Equal(t, def.Client.ConsumeInterval, cfg.Client.ConsumeInterval)
	assert.False(t, cfg.LegacyControl)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestResolvedOptions(t *testing.T) {
	cfg := Default()
	cfg.Streamer.Fill = "xy"

	s, err := cfg.StreamerOptions()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9009", s.Remote.String())
	assert.Equal(t, []byte("xy"), s.Fill)

	c, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9010", c.FeedbackRemote.String())
	require.NoError(t, c.Validate())

	cfg.Streamer.Remote = "no-port"
	_, err = cfg.StreamerOptions()
	assert.Error(t, err)
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.Log.Format = "yaml"
	assert.Error(t, cfg.ConfigureLogging())
}
