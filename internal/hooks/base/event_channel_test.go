package base

import (
	"sync"
	"testing"
	"time"

	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func cpuEvent(cgroup, cpu uint64) domain.ResourceEvent {
	return domain.ResourceEvent{CgroupID: cgroup, CPUTimeNs: cpu}
}

// Capacity 2, three productions with no drain: two retained, one dropped.
// Draining one frees room for a fourth.
func TestEventChannelCapacityAndDrain(t *testing.T) {
	ch := NewEventChannel(2, "test", zaptest.NewLogger(t))

	assert.True(t, ch.TrySend(cpuEvent(1, 10)))
	assert.True(t, ch.TrySend(cpuEvent(1, 20)))
	assert.False(t, ch.TrySend(cpuEvent(1, 30)))

	assert.Equal(t, 2, ch.Len())
	assert.Equal(t, uint64(2), ch.Sent())
	assert.Equal(t, uint64(1), ch.Dropped())
	assert.Equal(t, 100.0, ch.Utilization())

	drained := ch.Drain(1)
	require.Len(t, drained, 1)
	assert.Equal(t, uint64(10), drained[0].CPUTimeNs)

	assert.True(t, ch.TrySend(cpuEvent(1, 40)))
	assert.Equal(t, uint64(1), ch.Dropped())

	rest := ch.Drain(10)
	require.Len(t, rest, 2)
	assert.Equal(t, uint64(20), rest[0].CPUTimeNs)
	assert.Equal(t, uint64(40), rest[1].CPUTimeNs)
}

func TestEventChannelRetainsAtMostCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 16} {
		ch := NewEventChannel(capacity, "test", zaptest.NewLogger(t))
		produced := capacity * 3
		for i := 0; i < produced; i++ {
			ch.TrySend(cpuEvent(7, uint64(i)))
		}
		assert.Equal(t, capacity, ch.Len())
		assert.Equal(t, uint64(produced-capacity), ch.Dropped())
	}
}

func TestEventChannelPerProducerOrder(t *testing.T) {
	const producers = 4
	const perProducer = 200

	ch := NewEventChannel(producers*perProducer, "test", zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ch.TrySend(cpuEvent(id, uint64(i)))
			}
		}(uint64(p))
	}
	wg.Wait()

	last := map[uint64]int64{}
	for _, event := range ch.Drain(producers * perProducer) {
		prev, seen := last[event.CgroupID]
		if seen {
			assert.Greater(t, int64(event.CPUTimeNs), prev, "producer %d reordered", event.CgroupID)
		}
		last[event.CgroupID] = int64(event.CPUTimeNs)
	}
	assert.Len(t, last, producers)
}

func TestEventChannelCloseDropsLateSends(t *testing.T) {
	ch := NewEventChannel(4, "test", zaptest.NewLogger(t))
	require.True(t, ch.TrySend(cpuEvent(1, 1)))

	ch.Close()
	ch.Close() // idempotent

	assert.False(t, ch.TrySend(cpuEvent(1, 2)))
	assert.Equal(t, uint64(1), ch.Dropped())

	select {
	case event, ok := <-ch.Events():
		require.True(t, ok)
		assert.Equal(t, uint64(1), event.CPUTimeNs)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("queued event lost on close")
	}

	_, ok := <-ch.Events()
	assert.False(t, ok)
}

func TestEventChannelConcurrentSendAndClose(t *testing.T) {
	ch := NewEventChannel(8, "test", zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				ch.TrySend(cpuEvent(1, uint64(j)))
			}
		}()
	}
	ch.Close()
	wg.Wait()

	assert.Equal(t, uint64(8*500), ch.Sent()+ch.Dropped())
}

func TestEventChannelDrainNonPositive(t *testing.T) {
	ch := NewEventChannel(2, "test", nil)
	ch.TrySend(cpuEvent(1, 1))
	assert.Empty(t, ch.Drain(0))
	assert.Equal(t, 1, ch.Len())
}

func TestEventChannelDropReason(t *testing.T) {
	ch := NewEventChannel(1, "test", zaptest.NewLogger(t))
	assert.Equal(t, DropChannelFull, ch.DropReason())

	ch.Close()
	assert.False(t, ch.TrySend(domain.ResourceEvent{CgroupID: 1}))
	assert.Equal(t, DropClosed, ch.DropReason())
}
