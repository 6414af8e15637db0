package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chainsim/config"
)

func TestNewWithWriterRenamesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.Logging{Level: "info", Format: "json"}, &buf)
	logger.Info("committed", "tx_id", "abc")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	require.Equal(t, "INFO", record["severity"])
	require.Equal(t, "committed", record["message"])
	require.Equal(t, "abc", record["tx_id"])
	require.Contains(t, record, "timestamp")
	require.NotContains(t, record, "msg")
}

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.Logging{Level: "debug", Format: "text"}, &buf)
	logger.Debug("dispatch", "module", "bank")
	require.Contains(t, buf.String(), "severity=DEBUG")
	require.Contains(t, buf.String(), "message=dispatch")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestOutputUsesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainsim.log")
	w := Output(config.Logging{File: path, MaxSizeMB: 1})
	closer, ok := w.(io.Closer)
	require.True(t, ok)
	defer closer.Close()
	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestMaskAddress(t *testing.T) {
	require.Equal(t, "short", MaskAddress("short"))
	long := "sim1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu"
	masked := MaskAddress(long)
	require.Equal(t, long[:8], masked[:8])
	require.True(t, strings.HasSuffix(masked, long[len(long)-8:]))
	require.Contains(t, masked, "...")
}

func TestAddressAttr(t *testing.T) {
	attr := Address("sender", "sim1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu")
	require.Equal(t, "sender", attr.Key)
	require.Equal(t, "sim1qypq...c5lzv7xu", attr.Value.String())
	require.Len(t, attr.Value.String(), 19)
}
