package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsStepsInOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var order []string
	sm.RegisterShutdownFunc("otel", func(context.Context) error {
		order = append(order, "otel")
		return nil
	})
	sm.RegisterShutdownFunc("store", func(context.Context) error {
		order = append(order, "store")
		return nil
	})

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"otel", "store"}, order)
}

func TestShutdownManager_ContinuesAfterFailure(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	storeClosed := false
	sm.RegisterShutdownFunc("otel", func(context.Context) error {
		return errors.New("collector gone")
	})
	sm.RegisterShutdownFunc("store", func(context.Context) error {
		storeClosed = true
		return nil
	})

	err := sm.Shutdown(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "otel: collector gone")
	assert.True(t, storeClosed)
}

func TestShutdownManager_DrainsServers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NewServeMux()}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	sm := NewShutdownManager(NopLogger(), time.Second)
	sm.AddServer(srv)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 0)
	assert.Equal(t, 30*time.Second, sm.timeout)
}
