package channels

import (
	"context"
	"sync"

	"clobcore/internal/marketdata"

	"github.com/rs/zerolog/log"
)

// subscriberCapacity bounds each fan-out subscriber's buffer. A
// subscriber that falls this far behind is slow by definition and loses
// events rather than slowing everyone else down.
const subscriberCapacity = 256

// Broadcaster fans one market-data stream out to N subscribers (spec.md
// §5: "each subscriber sees the same sequence; slow subscribers must be
// dropped rather than blocking"). It never blocks on a subscriber send.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan marketdata.Event
	nextID      int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]chan marketdata.Event)}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function. The returned channel is closed by Unsubscribe,
// never by the broadcaster spontaneously.
func (b *Broadcaster) Subscribe() (<-chan marketdata.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan marketdata.Event, subscriberCapacity)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Run drains source and republishes every event to every current
// subscriber until ctx is canceled or source is closed.
func (b *Broadcaster) Run(ctx context.Context, source <-chan marketdata.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

func (b *Broadcaster) publish(ev marketdata.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("market", ev.Market.String()).
				Msg("channels: slow market-data subscriber, dropping event")
		}
	}
}
