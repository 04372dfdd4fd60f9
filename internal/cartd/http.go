package cartd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/pkg/kit"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Store   *cart.Store
	Storage Pinger
	Log     *zap.Logger

	JWT     *TokenMaker
	Limiter *kit.IPRateLimiter
}

type cartResp struct {
	Products []cart.Item `json:"products"`
}

const readyTimeout = 1 * time.Second

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Group(func(cr chi.Router) {
		cr.Use(s.provide)

		cr.Get("/cart", s.get)
		cr.Get("/cart/stream", s.stream)

		cr.Group(func(mr chi.Router) {
			if s.JWT != nil {
				mr.Use(AuthJWT(s.JWT))
			}
			if s.Limiter != nil {
				mr.Use(s.Limiter.Middleware)
			}
			mr.Post("/cart/items", s.add)
			mr.Post("/cart/items/{id}/increment", s.increment)
			mr.Post("/cart/items/{id}/decrement", s.decrement)
		})
	})

	return r
}

// provide registers a cart consumer for the lifetime of the request.
func (s *Server) provide(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := s.Store.Register()
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		defer c.Close()
		next.ServeHTTP(w, r.WithContext(cart.NewContext(r.Context(), c)))
	})
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if s.Store == nil {
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", map[string]any{"cause": "no cart store"})
		return
	}
	select {
	case <-s.Store.Loaded():
	default:
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", map[string]any{"cause": "cart loading"})
		return
	}
	if s.Storage != nil {
		if err := s.Storage.Ping(ctx); err != nil {
			s.logger().Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	c, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, "get", err)
		return
	}
	items, err := c.Products()
	if err != nil {
		s.writeCartError(w, r, "get", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, cartResp{Products: items})
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	var in cart.ItemInput
	if err := kit.DecodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "id required", nil)
		return
	}

	s.mutate(w, r, "add", in.ID, func(ctx context.Context, c *cart.Consumer) ([]cart.Item, error) {
		return c.AddToCart(ctx, in)
	})
}

func itemID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	id := itemID(r)
	s.mutate(w, r, "increment", id, func(ctx context.Context, c *cart.Consumer) ([]cart.Item, error) {
		return c.Increment(ctx, id)
	})
}

func (s *Server) decrement(w http.ResponseWriter, r *http.Request) {
	id := itemID(r)
	s.mutate(w, r, "decrement", id, func(ctx context.Context, c *cart.Consumer) ([]cart.Item, error) {
		return c.Decrement(ctx, id)
	})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op, id string, fn func(context.Context, *cart.Consumer) ([]cart.Item, error)) {
	c, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, op, err)
		return
	}

	items, err := fn(r.Context(), c)
	if err != nil {
		s.writeCartError(w, r, op, err)
		return
	}

	fields := []zap.Field{zap.String("op", op), zap.String("item_id", id), zap.Int("items", len(items))}
	if d, ok := DeviceFromContext(r.Context()); ok {
		fields = append(fields, zap.String("device_id", d.ID))
	}
	s.logger().Debug("cart mutated", fields...)

	kit.WriteJSON(w, http.StatusOK, cartResp{Products: items})
}

// stream sends the current cart, then one event per published snapshot.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	c, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, "stream", err)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		kit.WriteError(w, r, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	items, err := c.Products()
	if err != nil {
		s.writeCartError(w, r, "stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, items); err != nil {
		return
	}
	fl.Flush()

	updates := c.Updates()
	for {
		select {
		case <-r.Context().Done():
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, items); err != nil {
				s.logger().Debug("stream write failed", zap.Error(err))
				return
			}
			fl.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, items []cart.Item) error {
	b, err := json.Marshal(cartResp{Products: items})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

func (s *Server) writeCartError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, cart.ErrNoProvider):
		s.logger().Error("cart used without provider", zap.String("op", op))
		kit.WriteError(w, r, http.StatusInternalServerError, "cart provider missing", nil)
	case errors.Is(err, cart.ErrStorageWrite):
		kit.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger().Warn("cart op timed out", zap.String("op", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	case errors.Is(err, context.Canceled):
		s.logger().Debug("cart op canceled", zap.String("op", op), zap.Error(err))
	default:
		s.logger().Error("cart op failed", zap.String("op", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}
