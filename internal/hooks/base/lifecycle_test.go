package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLifecycleManagerStop(t *testing.T) {
	lm := NewLifecycleManager(context.Background(), zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		lm.Start("worker", func() {
			<-lm.Context().Done()
		})
	}

	require.Eventually(t, func() bool { return lm.Running() == 3 }, time.Second, time.Millisecond)
	assert.False(t, lm.IsShuttingDown())

	require.NoError(t, lm.Stop(time.Second))
	assert.True(t, lm.IsShuttingDown())
	assert.Equal(t, int32(0), lm.Running())

	// second stop is a no-op
	assert.NoError(t, lm.Stop(time.Second))
}

func TestLifecycleManagerStopTimeout(t *testing.T) {
	lm := NewLifecycleManager(context.Background(), zaptest.NewLogger(t))
	release := make(chan struct{})
	defer close(release)

	lm.Start("stuck", func() { <-release })

	assert.ErrorIs(t, lm.Stop(10*time.Millisecond), ErrShutdownTimeout)
}
