// pkg/loop/logger.go
package loop

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/odvcencio/wiggum/pkg/validation"
)

// LogEvent represents a single event in the JSONL log.
type LogEvent struct {
	Timestamp time.Time      `json:"ts"`
	Event     string         `json:"event"`
	RunID     string         `json:"run_id,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger writes JSONL events to a log file. All methods are nil-safe so
// the controller can run without a log attached.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	runID  string
}

// NewLogger creates a new JSONL logger appending to path.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return &Logger{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) write(evt LogEvent) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	evt.Timestamp = time.Now()
	if l.runID != "" && evt.RunID == "" {
		evt.RunID = l.runID
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.WriteByte('\n')
	l.writer.Flush()
}

// LogRunStart logs the start of a loop run.
func (l *Logger) LogRunStart(runID, statePath string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.runID = runID
	l.mu.Unlock()
	l.write(LogEvent{
		Event: "run_start",
		RunID: runID,
		Data: map[string]any{
			"state_path": statePath,
		},
	})
}

// LogIterationStart logs the start of one iteration.
func (l *Logger) LogIterationStart(iteration int, recordID string) {
	l.write(LogEvent{
		Event:     "iteration_start",
		Iteration: iteration,
		Data: map[string]any{
			"record_id": recordID,
		},
	})
}

// LogStage logs a stage transition.
func (l *Logger) LogStage(iteration int, from, to Stage) {
	l.write(LogEvent{
		Event:     "stage",
		Iteration: iteration,
		Data: map[string]any{
			"from": from.String(),
			"to":   to.String(),
		},
	})
}

// LogValidationResult logs the digest of a validation run.
func (l *Logger) LogValidationResult(iteration int, result validation.Result) {
	names := make([]string, 0, len(result.FailingChecks))
	for _, check := range result.FailingChecks {
		names = append(names, check.Name)
	}
	l.write(LogEvent{
		Event:     "validation_result",
		Iteration: iteration,
		Data: map[string]any{
			"passed":         result.Passed,
			"failing_checks": names,
		},
	})
}

// LogModeDecided logs the mode chosen for an iteration.
func (l *Logger) LogModeDecided(iteration int, mode Mode, consecutiveFailures int) {
	l.write(LogEvent{
		Event:     "mode_decided",
		Iteration: iteration,
		Data: map[string]any{
			"mode":                 mode.String(),
			"consecutive_failures": consecutiveFailures,
		},
	})
}

// LogBlockedAlert logs the explicit alert emitted when the loop blocks.
func (l *Logger) LogBlockedAlert(iteration, consecutiveFailures int, signature string) {
	l.write(LogEvent{
		Event:     "blocked_alert",
		Iteration: iteration,
		Data: map[string]any{
			"consecutive_failures": consecutiveFailures,
			"signature":            signature,
		},
	})
}

// LogIterationEnd logs the end of one iteration.
func (l *Logger) LogIterationEnd(iteration int, mode Mode, passed bool, duration time.Duration) {
	l.write(LogEvent{
		Event:     "iteration_end",
		Iteration: iteration,
		Data: map[string]any{
			"mode":        mode.String(),
			"passed":      passed,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// LogRunEnd logs the end of a loop run with its stop reason.
func (l *Logger) LogRunEnd(reason string, iterations int) {
	l.write(LogEvent{
		Event: "run_end",
		Data: map[string]any{
			"reason":     reason,
			"iterations": iterations,
		},
	})
}

// LogError logs an internal error.
func (l *Logger) LogError(iteration int, stage Stage, err error) {
	if err == nil {
		return
	}
	l.write(LogEvent{
		Event:     "error",
		Iteration: iteration,
		Data: map[string]any{
			"stage": stage.String(),
			"error": err.Error(),
		},
	})
}
