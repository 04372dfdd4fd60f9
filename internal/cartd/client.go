package cartd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MiniCart/internal/cart"
)

var (
	ErrServerUnavailable = errors.New("cart server unavailable")
	ErrBadStatus         = errors.New("cart server bad status")
	ErrUnauthorized      = errors.New("cart server rejected token")
)

// Client talks to a running cartd.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Products(ctx context.Context) ([]cart.Item, error) {
	return c.do(ctx, http.MethodGet, "/cart", nil)
}

func (c *Client) AddToCart(ctx context.Context, in cart.ItemInput) ([]cart.Item, error) {
	return c.do(ctx, http.MethodPost, "/cart/items", in)
}

func (c *Client) Increment(ctx context.Context, id string) ([]cart.Item, error) {
	return c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(id)+"/increment", nil)
}

func (c *Client) Decrement(ctx context.Context, id string) ([]cart.Item, error) {
	return c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(id)+"/decrement", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]cart.Item, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	case http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w", cart.ErrStorageWrite, ErrServerUnavailable)
	default:
		msg := readErrorMessage(resp.Body)
		return nil, fmt.Errorf("%w: status=%d %s", ErrBadStatus, resp.StatusCode, msg)
	}

	var out cartResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Products == nil {
		out.Products = []cart.Item{}
	}
	return out.Products, nil
}

func readErrorMessage(r io.Reader) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&e); err != nil {
		return ""
	}
	return e.Error
}
