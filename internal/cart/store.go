package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "minicart/cart"

// KV is the durable storage the cart is mirrored to.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Mode controls how concurrent mutations see each other.
type Mode int

const (
	// ModeSerialized runs one mutation at a time: read base, write, publish.
	ModeSerialized Mode = iota
	// ModeStaleBase captures the base list when a mutator is invoked and
	// writes without holding a lock, so the last publish wins. Two mutators
	// racing on the same base can drop each other's effect.
	ModeStaleBase
)

func (m Mode) String() string {
	switch m {
	case ModeSerialized:
		return "serialized"
	case ModeStaleBase:
		return "stale-base"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "serialized":
		return ModeSerialized, nil
	case "stale-base", "stale_base", "stalebase":
		return ModeStaleBase, nil
	default:
		return 0, fmt.Errorf("unknown mutation mode %q", s)
	}
}

type Options struct {
	Log     *zap.Logger
	Key     string
	Mode    Mode
	Metrics *Metrics
	Tracer  trace.Tracer
}

type Store struct {
	kv      KV
	key     string
	mode    Mode
	log     *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu        sync.RWMutex
	items     []Item
	consumers map[string]*Consumer

	mutateMu sync.Mutex

	loaded  chan struct{}
	loadErr error
}

// NewStore starts the one-shot load of the persisted cart in the background
// and returns immediately with an empty cart.
func NewStore(ctx context.Context, kv KV, opts Options) *Store {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Key == "" {
		opts.Key = StorageKey
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	s := &Store{
		kv:        kv,
		key:       opts.Key,
		mode:      opts.Mode,
		log:       opts.Log.With(zap.String("key", opts.Key), zap.Stringer("mode", opts.Mode)),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		items:     []Item{},
		consumers: map[string]*Consumer{},
		loaded:    make(chan struct{}),
	}

	go s.load(ctx)
	return s
}

// Loaded is closed once the initial load resolved, successfully or not.
func (s *Store) Loaded() <-chan struct{} { return s.loaded }

// LoadErr reports why the initial load fell back to an empty cart.
// It is nil until Loaded is closed.
func (s *Store) LoadErr() error {
	select {
	case <-s.loaded:
		return s.loadErr
	default:
		return nil
	}
}

func (s *Store) WaitLoaded(ctx context.Context) error {
	select {
	case <-s.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) load(ctx context.Context) {
	defer close(s.loaded)

	ctx, span := s.tracer.Start(ctx, "cart.load", trace.WithAttributes(attribute.String("cart.key", s.key)))
	defer span.End()

	start := time.Now()
	raw, ok, err := s.kv.Get(ctx, s.key)
	s.metrics.observeStorage("get", time.Since(start))

	items := []Item{}
	switch {
	case err != nil:
		s.loadErr = fmt.Errorf("%w: %w", ErrStorageRead, err)
		s.log.Error("load cart failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
	case ok:
		decoded, derr := decodeItems(raw)
		if derr != nil {
			s.loadErr = fmt.Errorf("%w: %w", ErrCorruptState, derr)
			s.log.Error("decode cart failed", zap.Error(derr), zap.Int("bytes", len(raw)))
			span.RecordError(derr)
			span.SetStatus(codes.Error, "decode failed")
			break
		}
		items = decoded
	}

	span.SetAttributes(attribute.Int("cart.items", len(items)))
	s.publish(items)
	s.log.Debug("cart loaded", zap.Int("items", len(items)))
}

func (s *Store) snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// publish swaps in next as the current state. next must not be modified afterwards.
func (s *Store) publish(next []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = next
	s.metrics.setItems(len(next))

	for _, c := range s.consumers {
		c.notify(cloneItems(next))
	}
}

func (s *Store) addToCart(ctx context.Context, in ItemInput) ([]Item, error) {
	return s.mutate(ctx, "add", func(base []Item) []Item {
		if indexOf(base, in.ID) >= 0 {
			return withAdjustedQuantity(base, in.ID, 1)
		}
		next := make([]Item, 0, len(base)+1)
		next = append(next, base...)
		return append(next, in.withQuantity(1))
	})
}

func (s *Store) increment(ctx context.Context, id string) ([]Item, error) {
	return s.mutate(ctx, "increment", func(base []Item) []Item {
		return withAdjustedQuantity(base, id, 1)
	})
}

func (s *Store) decrement(ctx context.Context, id string) ([]Item, error) {
	return s.mutate(ctx, "decrement", func(base []Item) []Item {
		return withAdjustedQuantity(base, id, -1)
	})
}

// mutate computes the next list from the current one, persists it and only
// then publishes it. A failed write leaves the in-memory state untouched.
func (s *Store) mutate(ctx context.Context, op string, next func(base []Item) []Item) ([]Item, error) {
	if err := s.WaitLoaded(ctx); err != nil {
		return nil, err
	}

	if s.mode == ModeSerialized {
		s.mutateMu.Lock()
		defer s.mutateMu.Unlock()
	}

	items := next(s.snapshot())

	if err := s.persist(ctx, op, items); err != nil {
		s.metrics.mutation(op, "error")
		return nil, err
	}

	s.publish(items)
	s.metrics.mutation(op, "ok")
	return cloneItems(items), nil
}

func (s *Store) persist(ctx context.Context, op string, items []Item) error {
	ctx, span := s.tracer.Start(ctx, "cart.persist", trace.WithAttributes(
		attribute.String("cart.op", op),
		attribute.Int("cart.items", len(items)),
	))
	defer span.End()

	raw, err := encodeItems(items)
	if err == nil {
		start := time.Now()
		err = s.kv.Set(ctx, s.key, raw)
		s.metrics.observeStorage("set", time.Since(start))
	}
	if err != nil {
		s.log.Error("persist cart failed", zap.String("op", op), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return nil
}
