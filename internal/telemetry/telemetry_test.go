package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "remindbot-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	// The exporter connects lazily, so an unreachable collector is not an error here.
	shutdown, err := Init(context.Background(), "127.0.0.1:1", "remindbot-test")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
