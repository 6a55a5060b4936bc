package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {

	logger, err := New(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestStdLog(t *testing.T) {

	core, logs := observer.New(zapcore.DebugLevel)
	std := StdLog(zap.New(core), "gamlss")
	std.Printf("BE: variance update %d", 1)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BE: variance update 1", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "gamlss", entries[0].LoggerName)
}
