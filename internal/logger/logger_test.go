package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).Component("services")

	log.Info("convention created", "convention_id", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "services", ctx["component"])
	assert.EqualValues(t, 3, ctx["convention_id"])
	assert.Equal(t, "convention created", entries[0].Message)
}

func TestNewLevels(t *testing.T) {
	_, err := New("prod", "loud")
	assert.Error(t, err)

	log, err := New("prod", "")
	require.NoError(t, err)
	assert.False(t, log.s.Desugar().Core().Enabled(zapcore.DebugLevel), "prod defaults to info")

	log, err = New("dev", "warn")
	require.NoError(t, err)
	assert.False(t, log.s.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.s.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Nop()
	assert.Same(t, l, OrNop(l))
}
