package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONScopedFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", JSON: true, Output: &buf})

	log.WithCharacter("char-1").WithHistory("hist-9").LogCall("POST", "/chat/streaming/", 200, 1500*time.Millisecond)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "call completed", entry["msg"])
	assert.Equal(t, "char-1", entry["character_id"])
	assert.Equal(t, "hist-9", entry["history_id"])
	assert.Equal(t, float64(1500), entry["latency_ms"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info("hidden")
	log.LogError(errors.New("boom"), "visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestWith_EmptyValuesReturnSameLogger(t *testing.T) {
	log := Nop()

	assert.Same(t, log, log.WithRequestID(""))
	assert.Same(t, log, log.WithCharacter(""))
	assert.Same(t, log, log.WithHistory(""))
}
