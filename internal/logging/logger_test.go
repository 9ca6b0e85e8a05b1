package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPicksLevelPerEnv(t *testing.T) {
	dev, err := New("dev", "")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))

	prod, err := New("production", "")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))
	assert.True(t, prod.Core().Enabled(zap.InfoLevel))
}

func TestNewLevelOverride(t *testing.T) {
	logger, err := New("dev", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	_, err = New("dev", "loud")
	assert.Error(t, err)
}
