package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCaptureLogger returns a debug-level JSON logger and a function that
// decodes every line it wrote.
func newCaptureLogger(t *testing.T) (*slog.Logger, func() []map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() []map[string]any {
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if line == "" {
				continue
			}
			var m map[string]any
			require.NoError(t, sonic.Unmarshal([]byte(line), &m))
			out = append(out, m)
		}
		return out
	}
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, "r", 1)
		LogRunComplete(nil, "r", "SUCCEEDED", 1, 1)
		LogRunError(nil, "r", errors.New("x"), 1, 2)
		LogNodeStart(nil, 1, "LLM")
		LogNodeComplete(nil, 1, "LLM", 1)
		LogNodeError(nil, 1, "LLM", errors.New("x"), false)
		LogNodeSkipped(nil, 1, "LLM")
		LogAudit(nil, "r", 1, 10)
		LogAuditError(nil, "r", 1, errors.New("x"))
	})
	assert.Nil(t, EnrichLogger(nil, "r", 1))
}

func TestLogRunLifecycle(t *testing.T) {
	logger, lines := newCaptureLogger(t)

	LogRunStart(logger, "run-1", 7)
	LogRunComplete(logger, "run-1", "PARTIAL", 12.5, 4)
	LogRunError(logger, "run-2", errors.New("boom"), 3, 9)

	got := lines()
	require.Len(t, got, 3)

	assert.Equal(t, "flow run starting", got[0]["msg"])
	assert.Equal(t, "run-1", got[0][KeyRunID])
	assert.EqualValues(t, 7, got[0][KeyFlowID])

	assert.Equal(t, "PARTIAL", got[1][KeyStatus])
	assert.EqualValues(t, 4, got[1]["nodes_executed"])
	assert.EqualValues(t, 12.5, got[1][KeyDurationMs])

	assert.Equal(t, "ERROR", got[2]["level"])
	assert.Equal(t, "boom", got[2][KeyError])
	assert.EqualValues(t, 9, got[2]["last_node"])
}

func TestLogNodeEvents(t *testing.T) {
	logger, lines := newCaptureLogger(t)

	LogNodeStart(logger, 3, "LLM")
	LogNodeComplete(logger, 3, "LLM", 1.5)
	LogNodeSkipped(logger, 4, "ANSWER")
	LogNodeError(logger, 5, "RETRIEVER", errors.New("no index"), true)
	LogNodeError(logger, 6, "LLM", errors.New("provider down"), false)

	got := lines()
	require.Len(t, got, 5)

	assert.Equal(t, "DEBUG", got[0]["level"])
	assert.EqualValues(t, 3, got[0][KeyNodeID])
	assert.Equal(t, "LLM", got[0][KeyNodeType])
	assert.Equal(t, "node skipped", got[2]["msg"])
	assert.Equal(t, "WARN", got[3]["level"])
	assert.Equal(t, true, got[3]["optional"])
	assert.Equal(t, "ERROR", got[4]["level"])
	assert.Equal(t, "provider down", got[4][KeyError])
}

func TestLogAudit(t *testing.T) {
	logger, lines := newCaptureLogger(t)

	LogAudit(logger, "run-1", 2, 128)
	LogAuditError(logger, "run-1", 0, errors.New("disk full"))

	got := lines()
	require.Len(t, got, 2)
	assert.EqualValues(t, 128, got[0]["size_bytes"])
	assert.Equal(t, "WARN", got[1]["level"])
	assert.Equal(t, "disk full", got[1][KeyError])
}

func TestEnrichLogger(t *testing.T) {
	logger, lines := newCaptureLogger(t)

	EnrichLogger(logger, "run-9", 42).Info("hello")

	got := lines()
	require.Len(t, got, 1)
	assert.Equal(t, "run-9", got[0][KeyRunID])
	assert.EqualValues(t, 42, got[0][KeyFlowID])
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5.0)
}
