package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	z := zerolog.New(&buf).With().Str("component", "replan").Logger()
	l := &ZerologLogger{log: z}

	l.Infof("published seq %d", 3)
	l.Debugw("solve", map[string]any{"periods": 24})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "replan", first["component"])
	assert.Equal(t, "published seq 3", first["message"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, float64(24), second["periods"])
}

func TestNewZerologLoggerRespectsLevelOverride(t *testing.T) {
	t.Setenv("FP_LOG_LEVEL", "warn")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	// Must not panic on any level, suppressed or not.
	l.Debugf("suppressed %d", 1)
	l.Debugw("suppressed", map[string]any{"k": 1})
	l.Infof("suppressed")
	l.Warnf("visible")
	l.Errorf("visible")
}
