package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestNamedNilLogger(t *testing.T) {
	logger := Named(nil, "scheduler")
	require.NotNil(t, logger)
	logger.Info("nop logger swallows output")
}

func TestNamed(t *testing.T) {
	base, err := New(true)
	require.NoError(t, err)
	child := Named(base, "ops")
	assert.NotNil(t, child)
}
