package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := New(zap.NewNop())
	var order []int

	bus.Subscribe(KindTaskStarted, func(e Event) { order = append(order, 1) })
	bus.Subscribe(KindTaskStarted, func(e Event) { order = append(order, 2) })
	bus.Subscribe(KindTaskStarted, func(e Event) { order = append(order, 3) })

	bus.Publish(Event{Kind: KindTaskStarted})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	bus := New(zap.NewNop())
	var taskStarted, taskCompleted int

	bus.Subscribe(KindTaskStarted, func(e Event) { taskStarted++ })
	bus.Subscribe(KindTaskCompleted, func(e Event) { taskCompleted++ })

	bus.Publish(Event{Kind: KindTaskStarted})

	assert.Equal(t, 1, taskStarted)
	assert.Equal(t, 0, taskCompleted)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(zap.NewNop())
	count := 0
	unsub := bus.Subscribe(KindBotError, func(e Event) { count++ })

	bus.Publish(Event{Kind: KindBotError})
	unsub()
	bus.Publish(Event{Kind: KindBotError})

	assert.Equal(t, 1, count)
}

func TestHandlerPanicDoesNotPreventOtherDelivery(t *testing.T) {
	bus := New(zap.NewNop())
	delivered := false

	bus.Subscribe(KindTaskFailed, func(e Event) { panic("boom") })
	bus.Subscribe(KindTaskFailed, func(e Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(Event{Kind: KindTaskFailed})
	})
	assert.True(t, delivered)
}

func TestSubscribeUnsubscribeConcurrentSafety(t *testing.T) {
	bus := New(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(KindBotClosed, func(e Event) {})
			bus.Publish(Event{Kind: KindBotClosed})
			unsub()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.SubscriberCount(KindBotClosed))
}

func TestStatsReportsPerKindSubscriberCounts(t *testing.T) {
	bus := New(zap.NewNop())
	bus.Subscribe(KindTaskStarted, func(e Event) {})
	bus.Subscribe(KindTaskStarted, func(e Event) {})
	bus.Subscribe(KindTaskFailed, func(e Event) {})

	stats := bus.Stats()
	assert.Equal(t, 2, stats[KindTaskStarted])
	assert.Equal(t, 1, stats[KindTaskFailed])
	assert.Equal(t, 0, stats[KindBotClosed])
}
