package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/framestream/simulation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	level := logrus.GetLevel()
	formatter := logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(level)
		logrus.SetFormatter(formatter)
	})

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Go version:")
}

func TestSimCommandJSON(t *testing.T) {
	out, err := execute(t, "sim", "--duration", "1s", "--packet-size", "32", "--json", "--log-level", "error")
	require.NoError(t, err)

	var report simulation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint64(61), report.Client.FramesPlayed+report.Client.Underruns)
	assert.NotZero(t, report.Streamer.Sent)
}

func TestSimCommandText(t *testing.T) {
	out, err := execute(t, "sim", "--duration", "200ms", "--loss", "0.05", "--seed", "3", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "network dropped")
	assert.Contains(t, out, "frames played")
}

func TestConfigFileAndEnvLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framestream.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sim]\nduration = \"100ms\"\nseed = 4\n"), 0o600))
	t.Setenv("FRAMESTREAM_LOSS_RATE", "0.5")

	out, err := execute(t, "sim", "--config", path, "--json", "--log-level", "error")
	require.NoError(t, err)

	var report simulation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(100e6), int64(report.Duration))
	assert.NotZero(t, report.Network.Dropped)
}

func TestInvalidConfigurationFails(t *testing.T) {
	_, err := execute(t, "sim", "--loss", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = execute(t, "sim", "--log-format", "xml")
	assert.Error(t, err)

	_, err = execute(t, "sim", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestStreamerBindFailure(t *testing.T) {
	taken, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, err = execute(t, "streamer", "--listen", taken.LocalAddr().String(),
		"--feedback-listen", "127.0.0.1:0", "--duration", "10ms", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
}

func TestClientRunsForDuration(t *testing.T) {
	out, err := execute(t, "client", "--listen", "127.0.0.1:0", "--feedback-remote", "127.0.0.1:9",
		"--duration", "100ms", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "frames played 0")
}

func TestStreamerRunsForDuration(t *testing.T) {
	sink, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer sink.Close()

	_, err = execute(t, "streamer", "--listen", "127.0.0.1:0", "--feedback-listen", "127.0.0.1:0",
		"--remote", sink.LocalAddr().String(), "--max-packets", "200", "--packet-size", "16",
		"--duration", "100ms", "--log-level", "error")
	require.NoError(t, err)

	require.NoError(t, sink.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := sink.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 13+16, n)
}
