// Copyright 2026 The Rockshrew Authors
// This file is part of rockshrew-go.
//
// rockshrew-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// rockshrew-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with rockshrew-go. If not, see <http://www.gnu.org/licenses/>.

// Package rlog is the structured logger every other package logs
// through; nothing in this module calls fmt.Printf or the stdlib log
// package for operational output.
package rlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sugared subset every component depends on. It exists so
// packages don't import zap directly and tests can swap in a recording
// stub.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	// Named returns a derived logger tagged with an additional name
	// component, the way --label tags every log line with the indexer
	// instance's identity.
	Named(name string) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds the process's root logger. label (from --label / --rocks-label)
// becomes the logger's name so log lines from multiple co-located
// instances can be told apart, mirroring the original Rust binary's
// set_label call.
func New(label string, debug bool) Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		// zap.Config.Build only fails on a malformed config; fall back
		// to zap's example logger rather than leave the process
		// without any logging at all.
		l = zap.NewExample()
	}
	s := l.Sugar()
	if label != "" {
		s = s.Named(label)
	}
	return &zapLogger{s: s}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (z *zapLogger) Debugw(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Infow(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warnw(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Errorw(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }
func (z *zapLogger) Named(name string) Logger             { return &zapLogger{s: z.s.Named(name)} }
func (z *zapLogger) Sync() error                          { return z.s.Sync() }
