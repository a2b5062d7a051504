package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for console log levels
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// ConsoleLogger writes leveled, optionally colored log lines to an io.Writer.
type ConsoleLogger struct {
	Level            LogLevel
	Output           io.Writer
	IncludeTimestamp bool
	ColorEnabled     bool
	mu               sync.Mutex
}

// NewConsoleLogger creates a console logger writing to stdout.
func NewConsoleLogger(level LogLevel) *ConsoleLogger {
	return &ConsoleLogger{
		Level:            level,
		Output:           os.Stdout,
		IncludeTimestamp: true,
		ColorEnabled:     true,
	}
}

func (l *ConsoleLogger) colorForLevel(level LogLevel) string {
	if !l.ColorEnabled {
		return ""
	}
	switch level {
	case LogLevelDebug:
		return colorGray
	case LogLevelInfo:
		return colorBlue
	case LogLevelWarn:
		return colorYellow
	case LogLevelError:
		return colorRed
	default:
		return ""
	}
}

func (l *ConsoleLogger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	if level < l.Level {
		return
	}

	var b strings.Builder
	if l.IncludeTimestamp {
		b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
		b.WriteByte(' ')
	}

	color := l.colorForLevel(level)
	if color != "" {
		b.WriteString(color)
	}
	fmt.Fprintf(&b, "[%s]", level)
	if color != "" {
		b.WriteString(colorReset)
	}
	b.WriteByte(' ')
	b.WriteString(msg)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 == 1 {
		fmt.Fprintf(&b, " %v=?", keysAndValues[len(keysAndValues)-1])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.Output, b.String())
}

func (l *ConsoleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

func (l *ConsoleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

func (l *ConsoleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

func (l *ConsoleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelError, msg, keysAndValues...)
}

func (l *ConsoleLogger) IsDebugEnabled() bool { return l.Level <= LogLevelDebug }
func (l *ConsoleLogger) IsInfoEnabled() bool  { return l.Level <= LogLevelInfo }
