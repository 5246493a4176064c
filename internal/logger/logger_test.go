package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false, true)

	l.Info("done", "packages", 2)
	l.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "done", record["message"])
	assert.Contains(t, record, "timestamp")
	assert.Equal(t, float64(2), record["packages"])
	assert.NotContains(t, buf.String(), "hidden", "Infoレベルでは Debug を出力しないべきです")
}

func TestNew_VerboseText(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true, false)

	l.Debug("scraping", "url", "https://example.com")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "url=https://example.com")
}
