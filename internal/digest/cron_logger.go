package digest

import (
	"github.com/robfig/cron/v3"

	"github.com/teemow/slotkeeper/internal/logging"
)

// cronLogger bridges cron's logger onto logging.Logger.
type cronLogger struct {
	logger logging.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{logging.KeyError, err.Error()}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
