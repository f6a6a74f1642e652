package graph

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// Logger is the logging surface used across the engine. commonlog.Logger
// satisfies it; tests substitute a recorder.
type Logger interface {
	Errorf(format string, values ...any)
	Warningf(format string, values ...any)
	Infof(format string, values ...any)
	Debugf(format string, values ...any)
}

// GetLogger returns the named commonlog logger.
func GetLogger(name string) Logger {
	return commonlog.GetLogger(name)
}
