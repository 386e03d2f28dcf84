// Package slog holds the logging interface shared by the bot and its packages
package slog

import (
	"fmt"
	"log"
)

// Logger is the logging interface of the bot. Every package logs through it so that the debug
// flag is honored everywhere
type Logger interface {
	Printf(format string, v ...interface{})

	Debugf(format string, v ...interface{})
}

type logger struct {
	logger *log.Logger
	debug  bool
}

// New creates a new Logger writing to l. Debug lines are only written when debug is true
func New(l *log.Logger, debug bool) Logger {
	sl := new(logger)
	sl.debug = debug
	sl.logger = l

	return sl
}

// Debugf logs a debug line after checking if the logger is in debug mode
func (sl *logger) Debugf(format string, v ...interface{}) {
	if sl.debug {
		sl.logger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Printf logs a line by delegating the call to Output
func (sl *logger) Printf(format string, v ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf(format, v...))
}
