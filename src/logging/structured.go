package logging

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Entry is a structured log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger emits one JSON object per log line.
type StructuredLogger struct {
	Level  LogLevel
	Output io.Writer
	mu     sync.Mutex
}

// NewStructuredLogger creates a JSON logger writing to output.
func NewStructuredLogger(level LogLevel, output io.Writer) *StructuredLogger {
	return &StructuredLogger{Level: level, Output: output}
}

func (l *StructuredLogger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	if level < l.Level {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
	}
	if len(keysAndValues) > 0 {
		entry.Fields = make(map[string]interface{}, len(keysAndValues)/2)
		for i := 0; i+1 < len(keysAndValues); i += 2 {
			if key, ok := keysAndValues[i].(string); ok {
				entry.Fields[key] = keysAndValues[i+1]
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.Output.Write(append(data, '\n'))
}

func (l *StructuredLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

func (l *StructuredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

func (l *StructuredLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

func (l *StructuredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelError, msg, keysAndValues...)
}

func (l *StructuredLogger) IsDebugEnabled() bool { return l.Level <= LogLevelDebug }
func (l *StructuredLogger) IsInfoEnabled() bool  { return l.Level <= LogLevelInfo }
