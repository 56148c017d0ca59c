// Package observability builds the process logger and hands it to every
// package that logs.
package observability

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/config"
	"github.com/wippyai/webbind/convert"
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/healthcheck"
	"github.com/wippyai/webbind/jsbind"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/serviceproxy"
	"github.com/wippyai/webbind/wasmhost"
	"github.com/wippyai/webbind/web"
)

// SetupLogger builds a zap.Logger from c, installs it in every package and
// as the zap global, and redirects the stdlib log package. The caller should
// defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	return setup(c, nil)
}

// setup is SetupLogger with an extra sink, used by tests.
func setup(c config.LogConfig, extra io.Writer) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := encoderConfig(c.Development)
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		ws, err := sink(out, c)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}
	if extra != nil {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(extra), level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)

	Install(logger)
	zap.ReplaceGlobals(logger)
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

func sink(out string, c config.LogConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}
	if c.Rotation.Enable {
		name := out
		if strings.TrimSpace(c.Rotation.Filename) != "" {
			name = c.Rotation.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		}), nil
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// Install hands logger to every package that logs, each under its own name.
func Install(logger *zap.Logger) {
	async.SetLogger(logger.Named("async"))
	convert.SetLogger(logger.Named("convert"))
	proxy.SetLogger(logger.Named("proxy"))
	web.SetLogger(logger.Named("web"))
	healthcheck.SetLogger(logger.Named("healthcheck"))
	eventbus.SetLogger(logger.Named("eventbus"))
	serviceproxy.SetLogger(logger.Named("serviceproxy"))
	jsbind.SetLogger(logger.Named("jsbind"))
	wasmhost.SetLogger(logger.Named("wasmhost"))
}

func encoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	return zap.NewProductionEncoderConfig()
}
