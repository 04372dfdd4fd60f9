package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Consumer is a registration handle on a Store. Reads and mutations go
// through it; once closed (or when nil) every call fails with ErrNoProvider
// without touching storage.
type Consumer struct {
	id    string
	store *Store

	mu      sync.Mutex
	closed  bool
	updates chan []Item
}

func (s *Store) Register() *Consumer {
	if s == nil {
		return nil
	}

	c := &Consumer{
		id:      uuid.NewString(),
		store:   s,
		updates: make(chan []Item, 1),
	}

	s.mu.Lock()
	s.consumers[c.id] = c
	s.mu.Unlock()

	s.log.Debug("consumer registered", zap.String("consumer_id", c.id))
	return c
}

func (c *Consumer) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Close ends the registration. It is safe to call more than once.
func (c *Consumer) Close() {
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.updates)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	c.store.mu.Lock()
	delete(c.store.consumers, c.id)
	c.store.mu.Unlock()

	c.store.log.Debug("consumer closed", zap.String("consumer_id", c.id))
}

func (c *Consumer) active() error {
	if c == nil || c.store == nil {
		return ErrNoProvider
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNoProvider
	}
	return nil
}

// Updates delivers every published snapshot. Only the newest undelivered
// snapshot is kept. The channel is closed by Close.
func (c *Consumer) Updates() <-chan []Item {
	if c == nil {
		return nil
	}
	return c.updates
}

func (c *Consumer) notify(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case <-c.updates:
	default:
	}
	c.updates <- items
}

// Products returns a copy of the current cart.
func (c *Consumer) Products() ([]Item, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	return cloneItems(c.store.snapshot()), nil
}

// Loaded reports whether the initial load of the store has resolved.
func (c *Consumer) Loaded() <-chan struct{} {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Loaded()
}

// AddToCart appends in with quantity 1, or increments it when its id is
// already in the cart. It returns the published cart.
func (c *Consumer) AddToCart(ctx context.Context, in ItemInput) ([]Item, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	return c.store.addToCart(ctx, in)
}

func (c *Consumer) Increment(ctx context.Context, id string) ([]Item, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	return c.store.increment(ctx, id)
}

// Decrement lowers the quantity of id by one, never below 1.
func (c *Consumer) Decrement(ctx context.Context, id string) ([]Item, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	return c.store.decrement(ctx, id)
}

type ctxKey string

const consumerKey ctxKey = "cart"

func NewContext(ctx context.Context, c *Consumer) context.Context {
	return context.WithValue(ctx, consumerKey, c)
}

func FromContext(ctx context.Context) (*Consumer, error) {
	c, ok := ctx.Value(consumerKey).(*Consumer)
	if !ok || c == nil {
		return nil, ErrNoProvider
	}
	if err := c.active(); err != nil {
		return nil, err
	}
	return c, nil
}
