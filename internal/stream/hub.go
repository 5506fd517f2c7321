// Package stream distributes option chain snapshots to subscribers.
package stream

import (
	"context"
	"sync"
	"time"

	"option-analyzer/internal/analysis/chain"
	"option-analyzer/internal/models"
)

// AllSymbols subscribes to every symbol.
const AllSymbols = ""

// Snapshot is one accepted chain with its derived report.
type Snapshot struct {
	Symbol     string              `json:"symbol"`
	Chain      *models.OptionChain `json:"chain"`
	Report     chain.Report        `json:"report"`
	ReceivedAt time.Time           `json:"receivedAt"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal snapshot channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// StaleAfter is how long after the last snapshot the source counts as
	// disconnected.
	StaleAfter time.Duration
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           64,
		SubscriberBufferSize: 16,
		StaleAfter:           2 * time.Minute,
	}
}

// ConnectionState describes the snapshot source as seen by the hub.
type ConnectionState struct {
	Running      bool      `json:"running"`
	Connected    bool      `json:"connected"`
	LastSnapshot time.Time `json:"lastSnapshot"`
	LastSymbol   string    `json:"lastSymbol,omitempty"`
	Reconnects   int       `json:"reconnects"`
	Published    uint64    `json:"published"`
	Delivered    uint64    `json:"delivered"`
	Dropped      uint64    `json:"dropped"`
	Subscribers  int       `json:"subscribers"`
}

// Hub fans snapshots out to subscribers. Sends never block: a subscriber
// whose buffer is full misses that snapshot.
type Hub struct {
	config HubConfig
	now    func() time.Time

	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	snapshots   chan Snapshot
	done        chan struct{}
	started     bool

	consumersMu sync.RWMutex
	consumers   []Consumer

	stateMu      sync.Mutex
	lastSnapshot time.Time
	lastSymbol   string
	reconnects   int
	published    uint64
	delivered    uint64
	dropped      uint64
}

type subscriber struct {
	ch     chan Snapshot
	closed bool
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = 1
	}
	return &Hub{
		config:      config,
		now:         time.Now,
		subscribers: make(map[string][]*subscriber),
		snapshots:   make(chan Snapshot, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// SetClock replaces the clock used for connection state.
func (h *Hub) SetClock(now func() time.Time) {
	h.stateMu.Lock()
	h.now = now
	h.stateMu.Unlock()
}

// Start begins the distribution loop. It returns when the loop is running.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.done = make(chan struct{})
	go h.broadcastLoop(ctx, h.done)
}

func (h *Hub) broadcastLoop(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case snap := <-h.snapshots:
			h.broadcast(snap)
			h.notifyConsumers(snap)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			sub.close()
		}
		delete(h.subscribers, symbol)
	}
}

// Subscribe registers for snapshots of symbol, or of every symbol with
// AllSymbols. The returned cancel func unsubscribes and closes the channel;
// it is safe to call more than once.
func (h *Hub) Subscribe(symbol string) (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, h.config.SubscriberBufferSize)}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(symbol, sub) }
}

func (h *Hub) unsubscribe(symbol string, target *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[symbol]
	for i, sub := range subs {
		if sub == target {
			sub.close()
			h.subscribers[symbol] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

func (s *subscriber) close() {
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
}

// Publish queues a snapshot for distribution and records it in the
// connection state. It reports false when the queue is full and the
// snapshot was dropped.
func (h *Hub) Publish(snap Snapshot) bool {
	h.stateMu.Lock()
	now := h.now()
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = now
	}
	if !h.lastSnapshot.IsZero() && now.Sub(h.lastSnapshot) > h.config.StaleAfter {
		h.reconnects++
	}
	h.lastSnapshot = now
	h.lastSymbol = snap.Symbol
	h.published++
	h.stateMu.Unlock()

	select {
	case h.snapshots <- snap:
		return true
	default:
		h.countDropped(1)
		return false
	}
}

// broadcast sends to the symbol's subscribers and to AllSymbols subscribers.
func (h *Hub) broadcast(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var delivered, dropped uint64
	send := func(subs []*subscriber) {
		for _, sub := range subs {
			select {
			case sub.ch <- snap:
				delivered++
			default:
				dropped++
			}
		}
	}
	send(h.subscribers[snap.Symbol])
	if snap.Symbol != AllSymbols {
		send(h.subscribers[AllSymbols])
	}

	h.stateMu.Lock()
	h.delivered += delivered
	h.dropped += dropped
	h.stateMu.Unlock()
}

func (h *Hub) countDropped(n uint64) {
	h.stateMu.Lock()
	h.dropped += n
	h.stateMu.Unlock()
}

// State returns the current connection state.
func (h *Hub) State() ConnectionState {
	h.mu.RLock()
	running := h.started
	subs := 0
	for _, s := range h.subscribers {
		subs += len(s)
	}
	h.mu.RUnlock()

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	connected := !h.lastSnapshot.IsZero() && h.now().Sub(h.lastSnapshot) <= h.config.StaleAfter
	return ConnectionState{
		Running:      running,
		Connected:    connected,
		LastSnapshot: h.lastSnapshot,
		LastSymbol:   h.lastSymbol,
		Reconnects:   h.reconnects,
		Published:    h.published,
		Delivered:    h.delivered,
		Dropped:      h.dropped,
		Subscribers:  subs,
	}
}

// Consumer processes snapshots outside the subscriber channels.
type Consumer interface {
	OnSnapshot(snap Snapshot)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(Snapshot)

// OnSnapshot implements Consumer.
func (f ConsumerFunc) OnSnapshot(snap Snapshot) { f(snap) }

// RegisterConsumer adds a consumer. Consumers are called in order on the
// broadcast goroutine and must not block.
func (h *Hub) RegisterConsumer(c Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, c)
	h.consumersMu.Unlock()
}

func (h *Hub) notifyConsumers(snap Snapshot) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, c := range consumers {
		c.OnSnapshot(snap)
	}
}
