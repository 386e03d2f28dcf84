package ctfbot

import (
	"log"

	"github.com/weixuan0110/ctfbot/slog"
)

// SLogger is the bot's logging interface, injected into every plugin
type SLogger = slog.Logger

// NewSLogger creates a new logger writing to log. Debug lines are only written when debug is true
func NewSLogger(log *log.Logger, debug bool) SLogger {
	return slog.New(log, debug)
}
