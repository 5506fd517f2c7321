package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func receive(t *testing.T, ch <-chan Snapshot) (Snapshot, bool) {
	t.Helper()
	select {
	case snap, ok := <-ch:
		return snap, ok
	case <-time.After(time.Second):
		return Snapshot{}, false
	}
}

// Property: with buffers large enough, every subscriber of a symbol and
// every AllSymbols subscriber receives each published snapshot in order.
func TestProperty_SubscribersReceiveSnapshotsInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"AAPL", "MSFT", "SPY"}

	properties.Property("fast subscribers receive every snapshot", prop.ForAll(
		func(subscriberCount, snapCount, symbolIdx int) bool {
			symbol := symbols[symbolIdx]
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 100, StaleAfter: time.Minute})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			channels := make([]<-chan Snapshot, 0, subscriberCount+1)
			for i := 0; i < subscriberCount; i++ {
				ch, _ := hub.Subscribe(symbol)
				channels = append(channels, ch)
			}
			all, _ := hub.Subscribe(AllSymbols)
			channels = append(channels, all)
			other, _ := hub.Subscribe("OTHER")

			for i := 0; i < snapCount; i++ {
				if !hub.Publish(Snapshot{Symbol: symbol, ReceivedAt: time.Unix(int64(i), 0)}) {
					return false
				}
			}

			for _, ch := range channels {
				for i := 0; i < snapCount; i++ {
					snap, ok := receive(t, ch)
					if !ok || snap.ReceivedAt.Unix() != int64(i) {
						return false
					}
				}
			}

			select {
			case <-other:
				return false
			default:
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 1, StaleAfter: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	slow, _ := hub.Subscribe("AAPL")
	done := make(chan struct{})
	hub.RegisterConsumer(ConsumerFunc(func(snap Snapshot) {
		if snap.ReceivedAt.Unix() == 9 {
			close(done)
		}
	}))

	for i := 0; i < 10; i++ {
		hub.Publish(Snapshot{Symbol: "AAPL", ReceivedAt: time.Unix(int64(i), 0)})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast loop blocked on slow subscriber")
	}

	if snap, ok := receive(t, slow); !ok || snap.ReceivedAt.Unix() != 0 {
		t.Errorf("slow subscriber got %v, %v; want first snapshot", snap.ReceivedAt, ok)
	}
	state := hub.State()
	if state.Dropped != 9 || state.Delivered != 1 || state.Published != 10 {
		t.Errorf("state = %+v", state)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("AAPL")
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if hub.State().Subscribers != 0 {
		t.Errorf("subscribers = %d, want 0", hub.State().Subscribers)
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Start(context.Background())
	ch, cancel := hub.Subscribe(AllSymbols)
	hub.Stop()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Stop")
	}
	cancel()
	if hub.State().Running {
		t.Error("hub still running")
	}
}

func TestConnectionState(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 12, 1, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	hub := NewHubWithConfig(HubConfig{BufferSize: 10, SubscriberBufferSize: 10, StaleAfter: time.Minute})
	hub.SetClock(clock)

	if s := hub.State(); s.Connected || !s.LastSnapshot.IsZero() {
		t.Errorf("initial state = %+v", s)
	}

	hub.Publish(Snapshot{Symbol: "AAPL"})
	s := hub.State()
	if !s.Connected || s.LastSymbol != "AAPL" || !s.LastSnapshot.Equal(clock()) {
		t.Errorf("after publish = %+v", s)
	}

	advance(2 * time.Minute)
	if hub.State().Connected {
		t.Error("source should be stale")
	}

	hub.Publish(Snapshot{Symbol: "MSFT"})
	s = hub.State()
	if !s.Connected || s.Reconnects != 1 || s.LastSymbol != "MSFT" {
		t.Errorf("after reconnect = %+v", s)
	}
}
