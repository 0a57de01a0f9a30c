package database

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger adapts hclog to GORM's logger interface so database traffic
// shares the process-wide structured log stream.
type gormLogger struct {
	log           hclog.Logger
	slowThreshold time.Duration
}

// NewGormLogger returns a GORM logger that writes through the given hclog
// logger. Queries slower than 200ms are logged at warn level.
func NewGormLogger(log hclog.Logger) gormlogger.Interface {
	return &gormLogger{
		log:           log,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	// Level filtering is handled by hclog.
	return l
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Info(msg, "args", args)
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Warn(msg, "args", args)
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Error(msg, "args", args)
}

func (l *gormLogger) Trace(
	_ context.Context, begin time.Time, fc func() (string, int64), err error,
) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("query error",
			"error", err,
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
		)
	case elapsed > l.slowThreshold:
		l.log.Warn("slow query",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
		)
	default:
		l.log.Trace("query",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
		)
	}
}
