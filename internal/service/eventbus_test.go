package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/domain"
)

func TestEventBus_PublishIsScopedToJob(t *testing.T) {
	bus := NewEventBus()
	a, cancelA := bus.Subscribe("a")
	defer cancelA()
	b, cancelB := bus.Subscribe("b")
	defer cancelB()

	bus.Publish("a", Event{JobID: "a", State: domain.JobStateFetching, Message: "downloading video"})

	select {
	case ev := <-a:
		assert.Equal(t, domain.JobStateFetching, ev.State)
	default:
		t.Fatal("subscriber a got nothing")
	}
	select {
	case ev := <-b:
		t.Fatalf("subscriber b got %+v", ev)
	default:
	}
}

func TestEventBus_KeepsNewestPendingEvent(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe("a")
	defer cancel()

	bus.Publish("a", Event{JobID: "a", State: domain.JobStateFetching})
	bus.Publish("a", Event{JobID: "a", State: domain.JobStateConverting})
	bus.Publish("a", Event{JobID: "a", State: domain.JobStateTranscribing})

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, domain.JobStateTranscribing, ev.State)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch1, cancel1 := bus.Subscribe("a")
	_, cancel2 := bus.Subscribe("a")
	require.Equal(t, 2, bus.SubscriberCount("a"))

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, bus.SubscriberCount("a"))

	cancel2()
	assert.Zero(t, bus.SubscriberCount("a"))

	// Publishing with no subscribers is a no-op.
	bus.Publish("a", Event{JobID: "a"})
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe("a")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish("a", Event{JobID: "a"})
			}
		}()
	}
	wg.Wait()
	cancel()

	n := 0
	for range ch {
		n++
	}
	assert.LessOrEqual(t, n, 1)
}
