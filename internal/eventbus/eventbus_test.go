package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := New()
	received := make([]PairPaidEvent, 0)
	Subscribe(b, func(ctx context.Context, e PairPaidEvent) error {
		received = append(received, e)
		return nil
	})

	b.Publish(context.Background(), PairPaidEvent{UserID: "u1", Amount: 10})
	b.Publish(context.Background(), RankAdvancedEvent{UserID: "u1", NewRankIndex: 1})

	if len(received) != 1 {
		t.Fatalf("expected 1 PairPaidEvent delivered, got %d", len(received))
	}
	if received[0].UserID != "u1" || received[0].Amount != 10 {
		t.Fatalf("unexpected event contents: %+v", received[0])
	}
}

func TestMultipleHandlersForSameEvent(t *testing.T) {
	b := New()
	var a, c int
	Subscribe(b, func(ctx context.Context, e BVCreditedEvent) error {
		a++
		return nil
	})
	Subscribe(b, func(ctx context.Context, e BVCreditedEvent) error {
		c++
		return errors.New("handler failure should not block others")
	})

	b.Publish(context.Background(), BVCreditedEvent{UserID: "u1", SignedAmount: 5})

	if a != 1 || c != 1 {
		t.Fatalf("expected both handlers invoked once, got a=%d c=%d", a, c)
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New()
	b.Publish(context.Background(), FranchiseSaleEvent{SaleID: "s1"})
}
