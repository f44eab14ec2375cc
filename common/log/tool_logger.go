// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package log implements a simple leveled logger shared by all of the
// advisor tools.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Tool logger verbosity constants. Messages are only written when the
// logger's verbosity is at least the level the message was logged at.
const (
	Always = iota
	Info
	DebugLow
	DebugHigh
)

const (
	ToolTimeFormat = "2006-01-02T15:04:05.000-0700"
)

// VerbosityLevel is an interface that allows the options packages to set
// logger verbosity without depending on this package's internals.
type VerbosityLevel interface {
	Level() int
	IsQuiet() bool
}

// ToolLogger is a levelled logger that writes timestamped lines to a
// single writer. All methods are safe for concurrent use.
type ToolLogger struct {
	mutex     sync.Mutex
	writer    io.Writer
	format    string
	verbosity int
}

// NewToolLogger returns a ToolLogger that writes to standard error at the
// given verbosity.
func NewToolLogger(verbosity VerbosityLevel) *ToolLogger {
	tl := &ToolLogger{
		writer: os.Stderr,
		format: ToolTimeFormat,
	}
	tl.SetVerbosity(verbosity)
	return tl
}

// SetVerbosity updates the logger's verbosity. A quiet verbosity silences
// everything, including Always-level messages.
func (tl *ToolLogger) SetVerbosity(verbosity VerbosityLevel) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	if verbosity == nil {
		tl.verbosity = 0
		return
	}
	if verbosity.IsQuiet() {
		tl.verbosity = -1
	} else {
		tl.verbosity = verbosity.Level()
	}
}

func (tl *ToolLogger) SetWriter(writer io.Writer) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.writer = writer
}

func (tl *ToolLogger) SetDateFormat(dateFormat string) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.format = dateFormat
}

// Logvf writes a formatted message if the logger's verbosity is at least
// minVerb. Negative minVerb values panic, since they would log even in
// quiet mode.
func (tl *ToolLogger) Logvf(minVerb int, format string, a ...interface{}) {
	if minVerb < 0 {
		panic("cannot set a minimum log verbosity that is less than 0")
	}

	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	if minVerb <= tl.verbosity {
		tl.log(fmt.Sprintf(format, a...))
	}
}

// Logv writes an unformatted message if the logger's verbosity is at least
// minVerb.
func (tl *ToolLogger) Logv(minVerb int, msg string) {
	if minVerb < 0 {
		panic("cannot set a minimum log verbosity that is less than 0")
	}

	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	if minVerb <= tl.verbosity {
		tl.log(msg)
	}
}

// caller must hold tl.mutex
func (tl *ToolLogger) log(msg string) {
	fmt.Fprintf(tl.writer, "%v\t%v\n", time.Now().Format(tl.format), msg)
}

// ToolLogWriter is an io.Writer that logs everything written to it at a
// fixed verbosity, for handing to libraries that expect a writer.
type ToolLogWriter struct {
	logger       *ToolLogger
	minVerbosity int
}

func (tl *ToolLogger) Writer(minVerb int) io.Writer {
	return &ToolLogWriter{tl, minVerb}
}

func (lw *ToolLogWriter) Write(message []byte) (int, error) {
	lw.logger.Logv(lw.minVerbosity, string(message))
	return len(message), nil
}

// Log using the global tool logger.

var globalToolLogger *ToolLogger

func init() {
	if globalToolLogger == nil {
		globalToolLogger = NewToolLogger(nil)
	}
}

func Logvf(minVerb int, format string, a ...interface{}) {
	globalToolLogger.Logvf(minVerb, format, a...)
}

func Logv(minVerb int, msg string) {
	globalToolLogger.Logv(minVerb, msg)
}

func SetVerbosity(verbosity VerbosityLevel) {
	globalToolLogger.SetVerbosity(verbosity)
}

func SetWriter(writer io.Writer) {
	globalToolLogger.SetWriter(writer)
}

func SetDateFormat(dateFormat string) {
	globalToolLogger.SetDateFormat(dateFormat)
}

func Writer(minVerb int) io.Writer {
	return globalToolLogger.Writer(minVerb)
}
