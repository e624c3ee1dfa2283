package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger adapts gorm logging onto the shared zap logger.
type GormLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

func NewGormLogger(log *zap.Logger) *GormLogger {
	return &GormLogger{
		log:   log.Named("gorm"),
		level: gormlogger.Warn,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("query failed",
			zap.String("sql", strings.TrimSpace(sql)),
			zap.Int64("rows", rows),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Error(err),
		)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query",
			zap.String("sql", strings.TrimSpace(sql)),
			zap.Int64("rows", rows),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("query",
			zap.String("sql", strings.TrimSpace(sql)),
			zap.Int64("rows", rows),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}
}
