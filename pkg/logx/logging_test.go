package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Err(errors.New("bad")), Err(nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.Equal(t, float64(3), m["n"])
	assert.Equal(t, "bad", m[zerolog.ErrorFieldName])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroAndNop(t *testing.T) {
	t.Parallel()
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.False(t, Nop().IsZero())
	Nop().Error("never written")
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	got := formatTelegramJSON([]byte(`{"level":"warn","message":"job not re-armed","job":"reminder_4","time":"x"}` + "\n"))
	assert.Equal(t, "[WARN] job not re-armed\n- job=reminder_4", got)
	assert.Equal(t, "plain line", formatTelegramJSON([]byte("  plain line \n")))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, LevelWarn, parseLevel("warning", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("bogus", LevelInfo))
}
