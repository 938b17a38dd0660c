// Package logging builds the zap logger from configuration.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/and161185/growing-together/internal/config"
)

// New returns a JSON logger at c.Level writing to stderr, or to a rotated
// file when c.File is set. The returned func flushes the logger and releases the file.
func New(c config.LogConfig) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	var rot *lumberjack.Logger
	if c.File != "" {
		rot = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   true,
		}
		ws = zapcore.AddSync(rot)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level)
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return log, func() error {
		_ = log.Sync()
		if rot != nil {
			return rot.Close()
		}
		return nil
	}, nil
}
