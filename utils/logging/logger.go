// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps zap with the leveled, contextual logger shape used
// throughout this node: one Logger per component, all sharing a Factory.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zapcore.Level but keeps the logging package independent of
// zap at call sites that only need to parse configuration.
type Level int8

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Verbo
)

func ToLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off":
		return Off, nil
	case "fatal":
		return Fatal, nil
	case "error":
		return Error, nil
	case "warn", "warning":
		return Warn, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	case "verbo", "trace":
		return Verbo, nil
	default:
		return Off, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Fatal:
		return zapcore.FatalLevel
	case Error:
		return zapcore.ErrorLevel
	case Warn:
		return zapcore.WarnLevel
	case Info:
		return zapcore.InfoLevel
	case Debug, Verbo:
		return zapcore.DebugLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is the leveled logging surface every component is handed. It is
// satisfied by *zap.Logger through the small adapter below so call sites can
// keep using zap.Field constructors (zap.String, zap.Error, ...).
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Named(name string) Logger
	Stop()
}

type logger struct {
	*zap.Logger
}

func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{l.Logger.With(fields...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{l.Logger.Named(name)}
}

func (l *logger) Stop() {
	_ = l.Logger.Sync()
}

// Config controls how the root logger and every named sub-logger behave.
type Config struct {
	Level          Level
	DisplayLevel   Level
	Directory      string // empty disables file output
	RotationMaxMB  int
	RotationMaxAge int // days
	JSONFormat     bool
}

func DefaultConfig() Config {
	return Config{
		Level:          Info,
		DisplayLevel:   Info,
		RotationMaxMB:  50,
		RotationMaxAge: 7,
		JSONFormat:     true,
	}
}

// Factory builds named Loggers that all share the same sinks and level.
type Factory interface {
	Make(name string) (Logger, error)
	Close()
}

type factory struct {
	cfg   Config
	cores []zapcore.Core
}

func NewFactory(cfg Config) Factory {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSONFormat {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg2 := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg2)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), cfg.DisplayLevel.zapLevel()),
	}

	if cfg.Directory != "" {
		w := &lumberjack.Logger{
			Filename: cfg.Directory + "/node.log",
			MaxSize:  cfg.RotationMaxMB,
			MaxAge:   cfg.RotationMaxAge,
			Compress: true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), cfg.Level.zapLevel()))
	}

	return &factory{cfg: cfg, cores: cores}
}

func (f *factory) Make(name string) (Logger, error) {
	core := zapcore.NewTee(f.cores...)
	zl := zap.New(core).Named(name)
	return &logger{zl}, nil
}

func (f *factory) Close() {}

// NoLog is a Logger that discards everything, used in tests that don't care
// about log output.
var NoLog Logger = &logger{zap.NewNop()}
