package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	for _, mode := range []string{"debug", "release", "test"} {
		require.NoError(t, InitLogger(mode), mode)
		assert.NotNil(t, Logger)
	}
}

func TestTrace(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	core, logs := observer.New(zap.DebugLevel)
	Logger = zap.New(core)

	done := Trace("segment")
	done()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "enter", entries[0].Message)
	assert.Equal(t, "exit", entries[1].Message)
	assert.Equal(t, "segment", entries[1].ContextMap()["name"])
	assert.Contains(t, entries[1].ContextMap(), "cost")
}
