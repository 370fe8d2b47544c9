package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// JSONLogEntry is one line written by the JSON logger.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = "INFO"
	}
	out, err := json.Marshal(e)
	if err != nil {
		log.Printf("json.Marshal: %v", err)
	}
	return string(out)
}

var severities = map[LogLevel]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type jsonLogger struct {
	metadata     map[string]interface{}
	component    string
	span         trace.SpanContext
	sink         Sink
	sinkLogLevel LogLevel
	noConsole    bool
	ts           *time.Time // for unit testing
	logLevel     LogLevel
	child        Logger
}

var _ SinkLogger = (*jsonLogger)(nil)

// WithContext attaches the trace and span ids of the span active in ctx, so
// log lines written inside a cache operation can be joined with its span.
func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		clone.span = sc
	}
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.sink = sink
	c.sinkLogLevel = level
	if child, ok := c.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

func (c *jsonLogger) clone() *jsonLogger {
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	cp := *c
	cp.metadata = metadata
	return &cp
}

// WithPrefix appends prefix to the component of every entry.
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	switch {
	case clone.component == "":
		clone.component = prefix
	case !strings.Contains(clone.component, prefix):
		clone.component += " " + prefix
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

// With merges fields into the entry metadata. A "component" field is lifted
// onto the entry itself.
func (c *jsonLogger) With(fields map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range fields {
		clone.metadata[k] = v
	}
	if comp, ok := clone.metadata["component"].(string); ok {
		clone.component = comp
		delete(clone.metadata, "component")
	}
	if clone.child != nil {
		clone.child = clone.child.With(fields)
	}
	return clone
}

func (c *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	return (!c.noConsole && level >= c.logLevel) || (c.sink != nil && level >= c.sinkLogLevel)
}

func (c *jsonLogger) entry(level LogLevel, msg string, args ...interface{}) JSONLogEntry {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	e := JSONLogEntry{
		Timestamp: time.Now(),
		Message:   msg,
		Severity:  severities[level],
		Component: c.component,
		Metadata:  c.metadata,
	}
	if c.span.IsValid() {
		e.TraceID = c.span.TraceID().String()
		e.SpanID = c.span.SpanID().String()
	}
	if c.ts != nil {
		e.Timestamp = *c.ts
	}
	return e
}

// Log writes one entry to the console and sink whose levels admit it.
func (c *jsonLogger) Log(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	e := c.entry(level, msg, args...)
	if !c.noConsole && level >= c.logLevel {
		log.Println(e)
	}
	if c.sink != nil && level >= c.sinkLogLevel {
		e.Message = ansiColorStripper.ReplaceAllString(e.Message, "")
		buf, _ := json.Marshal(e)
		if _, err := c.sink.Write(append(buf, '\n')); err != nil {
			log.Printf("sink.Write: %v", err)
		}
	}
}

func (c *jsonLogger) emit(level LogLevel, msg string, args ...interface{}) {
	c.Log(level, msg, args...)
	if c.child == nil {
		return
	}
	switch level {
	case LevelTrace:
		c.child.Trace(msg, args...)
	case LevelDebug:
		c.child.Debug(msg, args...)
	case LevelInfo:
		c.child.Info(msg, args...)
	case LevelWarn:
		c.child.Warn(msg, args...)
	default:
		c.child.Error(msg, args...)
	}
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) { c.emit(LevelTrace, msg, args...) }
func (c *jsonLogger) Debug(msg string, args ...interface{}) { c.emit(LevelDebug, msg, args...) }
func (c *jsonLogger) Info(msg string, args ...interface{})  { c.emit(LevelInfo, msg, args...) }
func (c *jsonLogger) Warn(msg string, args ...interface{})  { c.emit(LevelWarn, msg, args...) }
func (c *jsonLogger) Error(msg string, args ...interface{}) { c.emit(LevelError, msg, args...) }

func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.emit(LevelError, msg, args...)
	os.Exit(1)
}

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewJSONLogger returns a Logger that writes one JSON object per line to the
// standard logger. Without an explicit level it reads MEMOCACHE_LOG_LEVEL.
func NewJSONLogger(levels ...LogLevel) Logger {
	if len(levels) > 0 {
		return &jsonLogger{logLevel: levels[0], sinkLogLevel: LevelNone}
	}
	return &jsonLogger{logLevel: GetLevelFromEnv(), sinkLogLevel: LevelNone}
}

// NewJSONLoggerWithSink returns a Logger that writes only to sink.
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	return &jsonLogger{noConsole: true, sink: sink, sinkLogLevel: level, logLevel: LevelNone}
}
