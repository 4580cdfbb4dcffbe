package observability

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingDisabled(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestShutdownTracingNilProvider(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	assert.NoError(t, ShutdownTracing(context.Background(), nil, logger))
}
