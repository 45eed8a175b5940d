package mlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type Logger interface {
	Trace(v ...any)
	Debug(v ...any)
	Info(v ...any)
	Notice(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)

	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Noticef(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

type holder struct{ l Logger }

var logger atomic.Pointer[holder]

func SetLogger(l Logger) {
	logger.Store(&holder{l: l})
}

func current() Logger {
	if h := logger.Load(); h != nil {
		return h.l
	}
	return nil
}

// UseDefaultLogger 文件日志(按大小滚动), stdOut同时输出到标准输出; ctx结束时刷盘
func UseDefaultLogger(ctx context.Context, wg *sync.WaitGroup, path string, logName string, level Level, stdOut bool) error {
	l, rotator := newDefaultLogger(path, logName, level, stdOut)
	l.start(ctx, wg, rotator)
	SetLogger(l)
	return nil
}

func UseStdLogger(level Level) error {
	l := newStdoutLogger(level)
	SetLogger(l)
	return nil
}

// UseZapLogger 使用外部构造的zap logger, 测试中配合 zaptest/observer
func UseZapLogger(l *zap.Logger, level Level) {
	SetLogger(newZapLogger(l, level))
}

type Level uint32

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	NoticeLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = []string{"fatal", "error", "warn", "notice", "info", "debug", "trace"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", l)
}

// ParseLevel 配置中的级别名转Level
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("mlog: unknown level %q", s)
}

func Trace(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Trace(a...)
}

func Tracef(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Tracef(format, a...)
}

func Debug(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Debug(a...)
}

func Debugf(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Debugf(format, a...)
}

func Info(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Info(a...)
}

func Infof(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Infof(format, a...)
}

func Notice(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Notice(a...)
}

func Noticef(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Noticef(format, a...)
}

func Warn(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Warn(a...)
}

func Warnf(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Warnf(format, a...)
}

func Error(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Error(a...)
}

func Errorf(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Errorf(format, a...)
}

func Fatal(a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Fatal(a...)
}

func Fatalf(format string, a ...any) {
	l := current()
	if l == nil {
		return
	}
	l.Fatalf(format, a...)
}
