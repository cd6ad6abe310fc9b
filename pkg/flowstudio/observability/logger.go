// Package observability provides the logging, metrics and tracing hooks used
// by the flow engine.
//
//   - Structured logging via log/slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Every feature is opt-in and has a no-op implementation.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Log attribute keys shared by the engine and the helpers below.
const (
	KeyRunID      = "run_id"
	KeyFlowID     = "flow_id"
	KeyNodeID     = "node_id"
	KeyNodeType   = "node_type"
	KeyDurationMs = "duration_ms"
	KeyStatus     = "status"
	KeyError      = "error"
)

// EnrichLogger returns a logger carrying run and flow identifiers.
func EnrichLogger(logger *slog.Logger, runID string, flowID int64) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String(KeyRunID, runID),
		slog.Int64(KeyFlowID, flowID),
	)
}

// LogRunStart logs the start of a flow run.
func LogRunStart(logger *slog.Logger, runID string, flowID int64) {
	if logger == nil {
		return
	}
	logger.Info("flow run starting",
		slog.String(KeyRunID, runID),
		slog.Int64(KeyFlowID, flowID),
	)
}

// LogRunComplete logs a run that ended SUCCEEDED or PARTIAL.
func LogRunComplete(logger *slog.Logger, runID, status string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("flow run completed",
		slog.String(KeyRunID, runID),
		slog.String(KeyStatus, status),
		slog.Float64(KeyDurationMs, durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs a failed run. lastNode is 0 when the run failed before
// any node executed.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode int64) {
	if logger == nil {
		return
	}
	logger.Error("flow run failed",
		slog.String(KeyRunID, runID),
		slog.String(KeyError, errString(err)),
		slog.Float64(KeyDurationMs, durationMs),
		slog.Int64("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID int64, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.Int64(KeyNodeID, nodeID),
		slog.String(KeyNodeType, nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID int64, nodeType string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.Int64(KeyNodeID, nodeID),
		slog.String(KeyNodeType, nodeType),
		slog.Float64(KeyDurationMs, durationMs),
	)
}

// LogNodeError logs a node failure. Failures of optional nodes are warnings.
func LogNodeError(logger *slog.Logger, nodeID int64, nodeType string, err error, optional bool) {
	if logger == nil {
		return
	}
	level := slog.LevelError
	if optional {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "node failed",
		slog.Int64(KeyNodeID, nodeID),
		slog.String(KeyNodeType, nodeType),
		slog.String(KeyError, errString(err)),
		slog.Bool("optional", optional),
	)
}

// LogNodeSkipped logs a node whose incoming edges were all inactive.
func LogNodeSkipped(logger *slog.Logger, nodeID int64, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node skipped",
		slog.Int64(KeyNodeID, nodeID),
		slog.String(KeyNodeType, nodeType),
	)
}

// LogAudit logs a saved audit record.
func LogAudit(logger *slog.Logger, runID string, nodeID int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("audit record saved",
		slog.String(KeyRunID, runID),
		slog.Int64(KeyNodeID, nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogAuditError logs an audit failure. nodeID is 0 for the run record.
func LogAuditError(logger *slog.Logger, runID string, nodeID int64, err error) {
	if logger == nil {
		return
	}
	logger.Warn("audit failed",
		slog.String(KeyRunID, runID),
		slog.Int64(KeyNodeID, nodeID),
		slog.String(KeyError, errString(err)),
	)
}

// TimedOperation returns a function reporting the milliseconds elapsed since
// TimedOperation was called.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
