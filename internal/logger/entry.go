package logger

import (
	"context"
	"time"
)

// Entry is a log line with metric fields such as duration_ms or count.
//
//	logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Search returned results")
type Entry struct {
	fields Fields
}

// With creates an Entry carrying fields.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With merges more fields into a copy of e.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// Since adds duration_ms measured from start.
func (e *Entry) Since(start time.Time) *Entry {
	return e.With(Fields{FieldDurationMs: time.Since(start).Milliseconds()})
}

// WithStatus adds a status field.
func (e *Entry) WithStatus(status string) *Entry {
	return e.With(Fields{FieldStatus: status})
}

func (e *Entry) logger(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

// Debug logs at Debug level with the entry's fields and those carried by ctx.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Debugf(format, args...)
}

// Info logs at Info level with the entry's fields and those carried by ctx.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Infof(format, args...)
}

// Warn logs at Warn level with the entry's fields and those carried by ctx.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Warnf(format, args...)
}

// Error logs at Error level with the entry's fields and those carried by ctx.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Errorf(format, args...)
}
