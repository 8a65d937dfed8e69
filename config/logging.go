package config

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arloliu/loopfit/errs"
)

// ParseLevel parses a log level name: debug, info, warn or error. Debug enables the V(1)
// chunk-level messages of the pipeline.
func ParseLevel(name string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("%w: log level %q", errs.ErrInvalidConfig, name)
	}

	return lvl, nil
}

// NewLogger returns a console logger writing to w at the given level, and a function flushing it.
func NewLogger(level string, w io.Writer) (logr.Logger, func(), error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), func() {}, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	zl := zap.New(core)

	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
