package logger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowStatement is the slow statement threshold when none is set.
const DefaultSlowStatement = 200 * time.Millisecond

// maxLoggedSQL caps the statement text in a log entry. Batch upserts of
// engagements and reporting rows expand to very long statements.
const maxLoggedSQL = 1024

// GormLogger writes GORM statements through zap, tagged with the request,
// analysis and trace ids found in the statement context. Record-not-found
// results are never logged as failures; repositories map them to domain
// not-found errors.
type GormLogger struct {
	base  *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

// NewGormLogger creates a GormLogger. A non-positive slow uses
// DefaultSlowStatement.
func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel, slow time.Duration) *GormLogger {
	if slow <= 0 {
		slow = DefaultSlowStatement
	}
	return &GormLogger{base: base.Named("gorm"), level: level, slow: slow}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

// Info implements gormlogger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface. Failed statements are logged at
// error, slow ones at warn and the rest at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)

	log := l.logger(ctx)
	var (
		emit  func(string, ...zap.Field)
		msg   string
		extra zap.Field
	)
	switch {
	case failed && l.level >= gormlogger.Error:
		emit, msg, extra = log.Error, "Database statement failed", zap.Error(err)
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		emit, msg, extra = log.Warn, "Slow database statement", zap.Duration("threshold", l.slow)
	case l.level >= gormlogger.Info:
		emit, msg, extra = log.Debug, "Database statement", zap.Skip()
	default:
		return
	}

	sql, rows := fc()
	emit(msg,
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", truncateSQL(sql)),
		extra,
	)
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	fields := make([]zap.Field, 0, 3)
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetAnalysisID(ctx); id != "" {
		fields = append(fields, zap.String("analysis_id", id))
	}
	if id := GetTraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return l.base.With(fields...)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "... (" + strconv.Itoa(len(sql)-maxLoggedSQL) + " more bytes)"
}

// MapGormLogLevel maps the service log level to a GORM level. Statements
// are only traced at debug; info and warn keep slow statements and failures.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error", "fatal", "panic":
		return gormlogger.Error
	case "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
