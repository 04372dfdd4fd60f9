package cart

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConsumer_WithoutProviderFailsWithoutStorageAccess(t *testing.T) {
	kv := newFakeKV()
	s, _ := newLoadedStore(t, kv, ModeSerialized)
	getsAfterLoad := kv.getCount()

	closed := s.Register()
	closed.Close()
	closed.Close()

	var nilConsumer *Consumer
	var nilStore *Store

	ctx := context.Background()
	for name, c := range map[string]*Consumer{
		"nil":         nilConsumer,
		"closed":      closed,
		"nil-store":   nilStore.Register(),
		"zero-handle": {},
	} {
		if _, err := c.Products(); !errors.Is(err, ErrNoProvider) {
			t.Fatalf("%s products: err=%v", name, err)
		}
		if _, err := c.AddToCart(ctx, shoe); !errors.Is(err, ErrNoProvider) {
			t.Fatalf("%s add: err=%v", name, err)
		}
		if _, err := c.Increment(ctx, "a"); !errors.Is(err, ErrNoProvider) {
			t.Fatalf("%s increment: err=%v", name, err)
		}
		if _, err := c.Decrement(ctx, "a"); !errors.Is(err, ErrNoProvider) {
			t.Fatalf("%s decrement: err=%v", name, err)
		}
	}

	if kv.setCount() != 0 || kv.getCount() != getsAfterLoad {
		t.Fatalf("storage touched: sets=%d gets=%d", kv.setCount(), kv.getCount())
	}
}

func TestFromContext(t *testing.T) {
	_, c := newLoadedStore(t, newFakeKV(), ModeSerialized)

	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("empty ctx: err=%v", err)
	}

	ctx := NewContext(context.Background(), c)
	got, err := FromContext(ctx)
	if err != nil {
		t.Fatalf("from ctx: %v", err)
	}
	if got.ID() != c.ID() {
		t.Fatalf("id=%s want=%s", got.ID(), c.ID())
	}

	c.Close()
	if _, err := FromContext(ctx); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("closed handle: err=%v", err)
	}
}

func TestConsumer_UpdatesReceivePublishedSnapshots(t *testing.T) {
	s, writer := newLoadedStore(t, newFakeKV(), ModeSerialized)
	reader := s.Register()
	ctx := context.Background()

	if _, err := writer.AddToCart(ctx, shoe); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := writer.Increment(ctx, "a"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	select {
	case items := <-reader.Updates():
		if q := quantityOf(items, "a"); q != 2 {
			t.Fatalf("latest snapshot quantity=%d want=2", q)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update delivered")
	}

	reader.Close()
	if _, ok := <-reader.Updates(); ok {
		t.Fatalf("updates channel still open after close")
	}

	if _, err := writer.Increment(ctx, "a"); err != nil {
		t.Fatalf("increment after reader closed: %v", err)
	}
}

func TestConsumer_SnapshotsAreCopies(t *testing.T) {
	_, c := newLoadedStore(t, newFakeKV(), ModeSerialized)

	got, err := c.AddToCart(context.Background(), shoe)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got[0].Quantity = 99

	p := mustProducts(t, c)
	p[0].Title = "mutated"

	if again := mustProducts(t, c); again[0].Quantity != 1 || again[0].Title != "X" {
		t.Fatalf("state leaked through snapshot: %+v", again[0])
	}
}
