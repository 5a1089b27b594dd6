// Package channels is the message-passing boundary around the engine
// (spec.md §5): the four channels that connect it to every other
// component, and the drop-slow-consumer fan-out for market data.
package channels

import (
	"clobcore/internal/engine"
	"clobcore/internal/marketdata"
)

// defaultIngressCapacity bounds the ingress channel so producers get
// backpressure rather than unbounded growth (spec.md §5 recommends a
// bounded variant).
const defaultIngressCapacity = 256

// defaultPersistCapacity is sized generously since persistence must
// never be the thing that drops; the engine's own spill buffer is the
// real backstop once this fills.
const defaultPersistCapacity = 1024

// defaultMarketDataCapacity is the engine's single outbound market-data
// channel, drained exclusively by a Broadcaster.
const defaultMarketDataCapacity = 1024

// Bus bundles the four channels spec.md §5 names: Ingress, Persist, and
// MarketData are owned here; Response is not a shared channel in this
// implementation — each Command carries its own per-request reply
// channel instead (SPEC_FULL.md §8), which satisfies the same "answer
// routed by order_id" requirement without a broadcast fan-out for acks.
type Bus struct {
	Ingress    chan engine.Command
	Persist    chan engine.PersistMessage
	MarketData chan marketdata.Event
}

// NewBus allocates a Bus with the given ingress capacity (0 for
// unbounded producers to throttle themselves upstream is not supported
// by a Go channel; pass a generous bound instead).
func NewBus(ingressCapacity int) *Bus {
	if ingressCapacity <= 0 {
		ingressCapacity = defaultIngressCapacity
	}
	return &Bus{
		Ingress:    make(chan engine.Command, ingressCapacity),
		Persist:    make(chan engine.PersistMessage, defaultPersistCapacity),
		MarketData: make(chan marketdata.Event, defaultMarketDataCapacity),
	}
}

// Close closes Ingress, which is how spec.md §5 defines engine shutdown:
// the engine drains any in-flight command, then returns once Ingress is
// both closed and empty.
func (b *Bus) Close() {
	close(b.Ingress)
}
