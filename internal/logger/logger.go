// Package logger builds the process zap logger.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger writing to stdout and, when file is set, also
// appending to that file. An unknown level falls back to info.
func New(service, level, file string) *zap.Logger {
	return build(service, level, file, os.Stdout)
}

// NewStderr is New for commands whose stdout carries their result.
func NewStderr(service, level, file string) *zap.Logger {
	return build(service, level, file, os.Stderr)
}

func build(service, level, file string, out *os.File) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.MessageKey = "msg"

	sinks := []zapcore.WriteSyncer{zapcore.Lock(out)}
	if file != "" {
		// a log file that cannot be opened leaves stdout only
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err == nil {
			if f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				sinks = append(sinks, zapcore.AddSync(f))
			}
		}
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.NewMultiWriteSyncer(sinks...), lvl)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", service))
}
