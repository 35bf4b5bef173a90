package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production(t *testing.T) {
	logger := NewLogger("production")
	require.NotNil(t, logger)

	// Production logs at info; debug is suppressed.
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLogger_Development(t *testing.T) {
	logger := NewLogger("development")
	require.NotNil(t, logger)

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestWithComponent(t *testing.T) {
	logger := WithComponent(NewLogger("development"), "session")
	require.NotNil(t, logger)

	// Tagging must not replace the underlying handler's level.
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
