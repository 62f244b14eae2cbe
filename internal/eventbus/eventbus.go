// Package eventbus is a small synchronous in-process publish/subscribe
// hub. It exists so the engines can react to each other's completed
// work (a BV credit triggering level income and the royalty pool, a
// rank advance invalidating the cached eligibility lists) without
// calling into one another directly, avoiding the "sprawling services calling each
// other synchronously" shape the design notes warn against (spec.md
// §9). Grounded in the teacher's BaseService hook registration
// (infrastructure/service/base.go AddTickerWorker/hydrate pattern)
// generalized from tickers to typed events.
package eventbus

import (
	"context"
	"reflect"
	"sync"

	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
)

// ActivationEvent fires once a package activation transaction commits.
type ActivationEvent struct {
	UserID      string
	PackageCode string
	EPINCode    string
}

// BVCreditedEvent fires once BV has been credited to a user (positive
// SignedAmount) or consumed from one (negative SignedAmount)
// (spec.md §4.B, §4.K).
type BVCreditedEvent struct {
	UserID       string
	SignedAmount int64
	Source       string
}

// PairPaidEvent describes a credited matched pair (spec.md §4.E). No
// code in this module publishes it: the binary engine calls
// rankengine.OnPairPaid directly (§4.F).
type PairPaidEvent struct {
	UserID       string
	PackageCode  string
	Amount       int64
	DateKey      string
	SessionIndex int
}

// RankAdvancedEvent fires once a user's rank index for a package
// increases (spec.md §4.F). With the Redis cache enabled, internal/app
// subscribes to it to invalidate the cached royalty and fund
// eligibility lists (§4.G, §4.H).
type RankAdvancedEvent struct {
	UserID      string
	PackageCode string
	NewRankIndex int
}

// FranchiseSaleEvent fires once a franchise sale is recorded (spec.md
// §4.K). ProcessSale credits the buyer's BV itself before publishing
// it; no engine in this module subscribes to it.
type FranchiseSaleEvent struct {
	SaleID         string
	ProductID      string
	BuyerUserID    string
	ReferrerUserID string
	BVEquivalent   int64
}

// Handler processes one event. Handlers run synchronously, in
// registration order, on the publishing goroutine; a handler error is
// logged but does not stop later handlers or the caller's own flow —
// the bus is a fan-out notifier, not a second transaction boundary.
type Handler func(ctx context.Context, event interface{}) error

// Bus routes events to subscribers keyed by the event's concrete type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]Handler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]Handler)}
}

// Subscribe registers handler to run whenever an event whose concrete
// type is the type parameter T is published.
func Subscribe[T any](b *Bus, handler func(ctx context.Context, event T) error) {
	var zero T
	t := reflect.TypeOf(zero)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ctx context.Context, event interface{}) error {
		typed, ok := event.(T)
		if !ok {
			return nil
		}
		return handler(ctx, typed)
	})
}

// Publish delivers event to every handler subscribed to its concrete
// type. Errors are logged, not returned, matching the fire-and-forget
// notification contract described in the type doc comments above.
func (b *Bus) Publish(ctx context.Context, event interface{}) {
	t := reflect.TypeOf(event)
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[t]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			logging.Default().WithError(err).WithFields(map[string]interface{}{
				"event_type": t.String(),
			}).Error("event handler returned error")
		}
	}
}
