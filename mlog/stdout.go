package mlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newStdoutLogger(level Level) *zapLogger {
	core := zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return newZapLogger(zap.New(core, zap.AddCaller()), level)
}
