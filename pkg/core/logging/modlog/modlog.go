/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package modlog is the default module logger provider. Each module logger is a
// logrus entry tagged with the module name; level filtering is done per module.
package modlog

import (
	"io"
	"os"
	"sync"

	"github.com/nbrb/fabric-enroll/pkg/core/logging/api"
	"github.com/nbrb/fabric-enroll/pkg/core/logging/metadata"
	"github.com/sirupsen/logrus"
)

var rwmutex = &sync.RWMutex{}
var moduleLevels = &metadata.ModuleLevels{}

// Provider is the default logger implementation
type Provider struct {
	base *logrus.Logger
}

//LoggerProvider returns logging provider writing to stderr, so that
//command output on stdout stays machine readable
func LoggerProvider() *Provider {
	return NewProvider(os.Stderr)
}

// NewProvider returns a provider writing to out.
func NewProvider(out io.Writer) *Provider {
	base := logrus.New()
	base.SetOutput(out)
	// filtering happens per module, logrus must pass everything through
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000 UTC",
	})
	return &Provider{base: base}
}

//GetLogger returns SDK logger implementation
func (p *Provider) GetLogger(module string) api.Logger {
	return &Log{entry: p.base.WithField("module", module), module: module}
}

//SetLevel - setting log level for given module
func SetLevel(module string, level api.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()
	moduleLevels.SetLevel(module, level)
}

//GetLevel - getting log level for given module
func GetLevel(module string) api.Level {
	rwmutex.RLock()
	defer rwmutex.RUnlock()
	return moduleLevels.GetLevel(module)
}

//IsEnabledFor - Check if given log level is enabled for given module
func IsEnabledFor(module string, level api.Level) bool {
	rwmutex.RLock()
	defer rwmutex.RUnlock()
	return moduleLevels.IsEnabledFor(module, level)
}

//Log is a standard SDK logger implementation
type Log struct {
	entry  *logrus.Entry
	module string
}

// Fatal is CRITICAL log followed by a call to os.Exit(1).
func (l *Log) Fatal(args ...interface{}) {
	l.entry.Fatal(args...)
}

// Fatalf is CRITICAL log formatted followed by a call to os.Exit(1).
func (l *Log) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// Debug logs at DEBUG level if enabled for the module.
func (l *Log) Debug(args ...interface{}) {
	if IsEnabledFor(l.module, api.DEBUG) {
		l.entry.Debug(args...)
	}
}

// Debugf logs at DEBUG level if enabled for the module.
func (l *Log) Debugf(format string, args ...interface{}) {
	if IsEnabledFor(l.module, api.DEBUG) {
		l.entry.Debugf(format, args...)
	}
}

// Info logs at INFO level if enabled for the module.
func (l *Log) Info(args ...interface{}) {
	if IsEnabledFor(l.module, api.INFO) {
		l.entry.Info(args...)
	}
}

// Infof logs at INFO level if enabled for the module.
func (l *Log) Infof(format string, args ...interface{}) {
	if IsEnabledFor(l.module, api.INFO) {
		l.entry.Infof(format, args...)
	}
}

// Warn logs at WARNING level if enabled for the module.
func (l *Log) Warn(args ...interface{}) {
	if IsEnabledFor(l.module, api.WARNING) {
		l.entry.Warn(args...)
	}
}

// Warnf logs at WARNING level if enabled for the module.
func (l *Log) Warnf(format string, args ...interface{}) {
	if IsEnabledFor(l.module, api.WARNING) {
		l.entry.Warnf(format, args...)
	}
}

// Error logs at ERROR level if enabled for the module.
func (l *Log) Error(args ...interface{}) {
	if IsEnabledFor(l.module, api.ERROR) {
		l.entry.Error(args...)
	}
}

// Errorf logs at ERROR level if enabled for the module.
func (l *Log) Errorf(format string, args ...interface{}) {
	if IsEnabledFor(l.module, api.ERROR) {
		l.entry.Errorf(format, args...)
	}
}
