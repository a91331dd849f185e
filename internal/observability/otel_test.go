package observability_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dnothi/dnothi/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLogger(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("kept", "office", "Dhaka")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "Dhaka", rec["office"])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLogger(&buf, "debug", "text")
	log.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}
