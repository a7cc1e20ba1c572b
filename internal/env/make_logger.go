package env

import (
	zap "go.uber.org/zap"
)

// MakeLogger builds the JSON logger every command logs to, at debug level
// when debug is set.
func MakeLogger(debug bool) (*zap.Logger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.Encoding = "json"

	return logConfig.Build()
}
