package contentbase

import (
	"fmt"
	"log"
	"strings"
)

// Logger is the structured logging contract every component accepts.
// Fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NoOpLogger discards everything
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (l *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Error(msg string, fields ...interface{}) {}

// StdLogger writes key=value lines through the standard log package.
// Intended for development and tests; use ZapLogger in production.
type StdLogger struct {
	prefix string
}

func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix}
}

func (l *StdLogger) Debug(msg string, fields ...interface{}) { l.log("DEBUG", msg, fields) }
func (l *StdLogger) Info(msg string, fields ...interface{})  { l.log("INFO", msg, fields) }
func (l *StdLogger) Warn(msg string, fields ...interface{})  { l.log("WARN", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...interface{}) { l.log("ERROR", msg, fields) }

func (l *StdLogger) log(level, msg string, fields []interface{}) {
	log.Print(formatLine(l.prefix, level, msg, fields))
}

func formatLine(prefix, level, msg string, fields []interface{}) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString("[" + level + "] " + msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	return b.String()
}

// loggerOrNoOp returns l, or a NoOpLogger when l is nil
func loggerOrNoOp(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}
