package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pkt.systems/pslog"
)

const slowQuery = 200 * time.Millisecond

// gormLogger routes gorm's diagnostics through pslog so nothing is printed
// over the interactive terminal.
type gormLogger struct {
	log   pslog.Logger
	level gormlogger.LogLevel
}

func newGormLogger(log pslog.Logger) gormlogger.Interface {
	return gormLogger{log: log, level: gormlogger.Warn}
}

func (l gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.level = level
	return l
}

func (l gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Debug("gorm", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn("gorm", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error("gorm", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Warn("db query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "err", err)
	case elapsed > slowQuery && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Debug("db query slow", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Trace("db query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
