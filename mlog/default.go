package mlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxFileSizeMB  = 100 // 单个日志文件上限
	maxFileBackups = 10
)

// zapLogger Logger的zap实现, 级别过滤由mlog.Level控制
type zapLogger struct {
	s     *zap.SugaredLogger
	level Level
	sync  func() error
}

func newZapLogger(l *zap.Logger, level Level) *zapLogger {
	return &zapLogger{
		s:     l.WithOptions(zap.AddCallerSkip(2)).Sugar(),
		level: level,
		sync:  l.Sync,
	}
}

func newDefaultLogger(logpath, logName string, level Level, stdOut bool) (*zapLogger, *lumberjack.Logger) {
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, genLogName(logName)),
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxFileBackups,
		LocalTime:  true,
	}
	ws := zapcore.AddSync(rotator)
	if stdOut {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.Lock(os.Stdout))
	}
	core := zapcore.NewCore(newEncoder(), ws, zapcore.DebugLevel)
	return newZapLogger(zap.New(core, zap.AddCaller()), level), rotator
}

func newEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// start ctx结束时刷盘并关闭文件
func (me *zapLogger) start(ctx context.Context, wg *sync.WaitGroup, rotator *lumberjack.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = me.sync()
		_ = rotator.Close()
	}()
}

func (me *zapLogger) IsLevelEnabled(level Level) bool {
	return me.level >= level
}

func (me *zapLogger) Trace(args ...any) {
	if me.IsLevelEnabled(TraceLevel) {
		me.s.Debug(args...)
	}
}

func (me *zapLogger) Tracef(format string, args ...any) {
	if me.IsLevelEnabled(TraceLevel) {
		me.s.Debugf(format, args...)
	}
}

func (me *zapLogger) Debug(args ...any) {
	if me.IsLevelEnabled(DebugLevel) {
		me.s.Debug(args...)
	}
}

func (me *zapLogger) Debugf(format string, args ...any) {
	if me.IsLevelEnabled(DebugLevel) {
		me.s.Debugf(format, args...)
	}
}

func (me *zapLogger) Info(args ...any) {
	if me.IsLevelEnabled(InfoLevel) {
		me.s.Info(args...)
	}
}

func (me *zapLogger) Infof(format string, args ...any) {
	if me.IsLevelEnabled(InfoLevel) {
		me.s.Infof(format, args...)
	}
}

func (me *zapLogger) Notice(args ...any) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.s.Info(args...)
	}
}

func (me *zapLogger) Noticef(format string, args ...any) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.s.Infof(format, args...)
	}
}

func (me *zapLogger) Warn(args ...any) {
	if me.IsLevelEnabled(WarnLevel) {
		me.s.Warn(args...)
	}
}

func (me *zapLogger) Warnf(format string, args ...any) {
	if me.IsLevelEnabled(WarnLevel) {
		me.s.Warnf(format, args...)
	}
}

func (me *zapLogger) Error(args ...any) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.s.Error(args...)
	}
}

func (me *zapLogger) Errorf(format string, args ...any) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.s.Errorf(format, args...)
	}
}

func (me *zapLogger) Fatal(args ...any) {
	me.s.Fatal(args...)
}

func (me *zapLogger) Fatalf(format string, args ...any) {
	me.s.Fatalf(format, args...)
}

func genLogName(logName string) string {
	if logName == "" {
		logName = "mlog"
	}
	return logName + ".log"
}
