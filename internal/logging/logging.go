// Package logging builds the zap logger of the command line tool and
// bridges it to the standard library loggers used by the model packages.
package logging

import (
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap logger, at debug level if verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// StdLog returns a *log.Logger that writes to logger at debug level,
// for the optimizer progress messages of the model packages.
func StdLog(logger *zap.Logger, name string) *log.Logger {
	l, err := zap.NewStdLogAt(logger.Named(name), zapcore.DebugLevel)
	if err != nil {
		return zap.NewStdLog(logger.Named(name))
	}
	return l
}
