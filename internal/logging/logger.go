package logging

import (
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
)

var levelMap = map[string]levels.Level{
	"debug":   levels.LevelDebug,
	"info":    levels.LevelInfo,
	"warning": levels.LevelWarning,
	"warn":    levels.LevelWarning,
	"error":   levels.LevelError,
	"fatal":   levels.LevelFatal,
}

// ParseLevel maps a configured level name onto a gologger level.
// Unknown names report false.
func ParseLevel(logLevel string) (levels.Level, bool) {
	level, ok := levelMap[strings.ToLower(strings.TrimSpace(logLevel))]
	return level, ok
}

// Setup configures the default gologger instance based on the log level
func Setup(logLevel string) {
	level, ok := ParseLevel(logLevel)
	if !ok {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelInfo)
		gologger.Warning().Msgf("Unknown log level '%s', defaulting to 'info'", logLevel)
		return
	}

	gologger.DefaultLogger.SetMaxLevel(level)
	gologger.Debug().Msgf("Log level configured to: %s", logLevel)
}
