package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRAMESTREAM_"

// Bounds for numeric environment overrides.
const (
	MaxEnvInterval = time.Minute
	MaxEnvCapacity = 10000
)

// ApplyEnv overrides cfg from FRAMESTREAM_* variables. Values that fail to
// parse or fall out of bounds are logged and ignored.
func ApplyEnv(cfg *Config) {
	envString("STREAMER_LISTEN", &cfg.Streamer.Listen)
	envString("STREAMER_FEEDBACK_LISTEN", &cfg.Streamer.FeedbackListen)
	envString("STREAMER_REMOTE", &cfg.Streamer.Remote)
	envUint("MAX_PACKETS", &cfg.Streamer.MaxPackets)
	envInt("PACKET_SIZE", &cfg.Streamer.PacketSize, 0, 65507)
	envDuration("STREAMER_INTERVAL", &cfg.Streamer.Interval)
	envString("STREAMER_FILL", &cfg.Streamer.Fill)

	envString("CLIENT_LISTEN", &cfg.Client.Listen)
	envString("CLIENT_FEEDBACK_REMOTE", &cfg.Client.FeedbackRemote)
	envDuration("GENERATE_INTERVAL", &cfg.Client.GenerateInterval)
	envDuration("CONSUME_INTERVAL", &cfg.Client.ConsumeInterval)
	envInt("FRAME_BUFFER_CAPACITY", &cfg.Client.FrameBufferCapacity, 1, MaxEnvCapacity)
	envInt("PAUSE_THRESHOLD", &cfg.Client.PauseThreshold, 0, MaxEnvCapacity)
	envInt("RESUME_THRESHOLD", &cfg.Client.ResumeThreshold, 0, MaxEnvCapacity)
	envInt("MAX_PENDING_FRAMES", &cfg.Client.MaxPendingFrames, 0, MaxEnvCapacity)

	envFloat("LOSS_RATE", &cfg.Sim.LossRate)
	envFloat("DUPLICATE_RATE", &cfg.Sim.DuplicateRate)
	envInt64("SEED", &cfg.Sim.Seed)

	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
	envString("STATUS_LISTEN", &cfg.Status.Listen)
	envBool("LEGACY_CONTROL", &cfg.LegacyControl)
}

func lookup(name string) (string, string, bool) {
	key := EnvPrefix + name
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return key, "", false
	}
	return key, strings.TrimSpace(v), true
}

func warnParse(key, value string, err error, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "ApplyEnv",
		"env_var":     key,
		"value":       value,
		"error":       err.Error(),
		"using_value": using,
	}).Warn("Failed to parse environment variable, using current value")
}

func warnBounds(key string, value, min, max, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "ApplyEnv",
		"env_var":     key,
		"value":       value,
		"min":         min,
		"max":         max,
		"using_value": using,
	}).Warn("Environment variable out of bounds, using current value")
}

func envString(name string, dst *string) {
	if _, v, ok := lookup(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int, min, max int) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	if n < min || n > max {
		warnBounds(key, n, min, max, *dst)
		return
	}
	*dst = n
}

func envInt64(name string, dst *int64) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	*dst = n
}

func envUint(name string, dst *uint64) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	if f < 0 || f > 1 {
		warnBounds(key, f, 0, 1, *dst)
		return
	}
	*dst = f
}

func envDuration(name string, dst *time.Duration) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	if d <= 0 || d > MaxEnvInterval {
		warnBounds(key, d, time.Duration(0), MaxEnvInterval, *dst)
		return
	}
	*dst = d
}

func envBool(name string, dst *bool) {
	key, v, ok := lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warnParse(key, v, err, *dst)
		return
	}
	*dst = b
}
