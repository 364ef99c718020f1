package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/core"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, core.Testing)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitStderrExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: true, ServiceName: "test", SampleRatio: 1}, core.Testing)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.5, clampRatio(0.5))
	assert.Equal(t, 1.0, clampRatio(3))
}
