package cartd_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/internal/cartd"
	"MiniCart/internal/kv"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type brokenKV struct{ kv.Store }

func (b brokenKV) Set(context.Context, string, string) error { return errors.New("disk full") }

func newStore(t *testing.T, storage cart.KV) *cart.Store {
	t.Helper()

	s := cart.NewStore(context.Background(), storage, cart.Options{Log: zap.NewNop()})
	select {
	case <-s.Loaded():
	case <-time.After(2 * time.Second):
		t.Fatalf("cart did not load")
	}
	return s
}

func newCartTS(t *testing.T, s *cartd.Server, deps cartd.HTTPDeps) *httptest.Server {
	t.Helper()

	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Service == "" {
		deps.Service = "cartd"
	}

	ts := httptest.NewServer(cartd.NewHandler(s, deps))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			r = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func decodeProducts(t *testing.T, raw []byte) []cart.Item {
	t.Helper()
	var out struct {
		Products []cart.Item `json:"products"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out.Products
}

func TestCartAPI_HappyPath(t *testing.T) {
	storage := kv.NewMemStore()
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage), Storage: storage}, cartd.HTTPDeps{})

	shoe := map[string]any{"id": "1", "title": "Shoe", "image_url": "http://img/1", "price": 199.0}

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/cart/items", shoe, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status=%d body=%s", resp.StatusCode, raw)
	}
	if p := decodeProducts(t, raw); len(p) != 1 || p[0].Quantity != 1 {
		t.Fatalf("after add: %+v", p)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/cart/items", shoe, nil)
	if p := decodeProducts(t, raw); resp.StatusCode != http.StatusOK || len(p) != 1 || p[0].Quantity != 2 {
		t.Fatalf("add again status=%d: %+v", resp.StatusCode, p)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/cart/items/1/increment", nil, nil)
	if p := decodeProducts(t, raw); resp.StatusCode != http.StatusOK || p[0].Quantity != 3 {
		t.Fatalf("increment status=%d: %+v", resp.StatusCode, p)
	}

	for i := 0; i < 5; i++ {
		resp, raw = doJSON(t, http.MethodPost, ts.URL+"/cart/items/1/decrement", nil, nil)
	}
	if p := decodeProducts(t, raw); resp.StatusCode != http.StatusOK || len(p) != 1 || p[0].Quantity != 1 {
		t.Fatalf("decrement status=%d: %+v", resp.StatusCode, p)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/cart", nil, nil)
	p := decodeProducts(t, raw)
	if resp.StatusCode != http.StatusOK || len(p) != 1 || p[0].Title != "Shoe" || p[0].ImageURL != "http://img/1" {
		t.Fatalf("get status=%d: %+v", resp.StatusCode, p)
	}

	stored, ok, err := storage.Get(context.Background(), cart.StorageKey)
	if err != nil || !ok {
		t.Fatalf("nothing stored: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(stored, `"quantity":1`) {
		t.Fatalf("stored=%s", stored)
	}
}

func TestCartAPI_AddValidation(t *testing.T) {
	storage := kv.NewMemStore()
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage)}, cartd.HTTPDeps{})

	for _, body := range []string{
		`not json`,
		`{"id":"1","quantity":4}`,
		`{"id":"   "}`,
		`{"id":"1"}{"id":"2"}`,
	} {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/cart/items", body, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", body, resp.StatusCode, raw)
		}
	}

	if _, ok, _ := storage.Get(context.Background(), cart.StorageKey); ok {
		t.Fatalf("rejected request reached storage")
	}
}

func TestCartAPI_StorageWriteFailure(t *testing.T) {
	storage := brokenKV{kv.NewMemStore()}
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage)}, cartd.HTTPDeps{})

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/cart/items", map[string]any{"id": "1"}, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}

	_, raw = doJSON(t, http.MethodGet, ts.URL+"/cart", nil, nil)
	if p := decodeProducts(t, raw); len(p) != 0 {
		t.Fatalf("failed write was published: %+v", p)
	}
}

func TestCartAPI_WithoutProvider(t *testing.T) {
	ts := newCartTS(t, &cartd.Server{}, cartd.HTTPDeps{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/cart"},
		{http.MethodPost, "/cart/items/1/increment"},
		{http.MethodPost, "/cart/items/1/decrement"},
	} {
		resp, raw := doJSON(t, tc.method, ts.URL+tc.path, nil, nil)
		if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(string(raw), "cart provider missing") {
			t.Fatalf("%s %s: status=%d body=%s", tc.method, tc.path, resp.StatusCode, raw)
		}
	}

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}
}

func TestCartAPI_MutationsRequireToken(t *testing.T) {
	tm := cartd.NewTokenMaker(testSecret)
	storage := kv.NewMemStore()
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage), JWT: tm}, cartd.HTTPDeps{})

	item := map[string]any{"id": "1"}

	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/cart/items", item, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", resp.StatusCode)
	}

	bad := map[string]string{"Authorization": "Bearer nope"}
	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/cart/items", item, bad); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d", resp.StatusCode)
	}

	tok, err := tm.New("device-1", time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	good := map[string]string{"Authorization": "Bearer " + tok}
	if resp, raw := doJSON(t, http.MethodPost, ts.URL+"/cart/items", item, good); resp.StatusCode != http.StatusOK {
		t.Fatalf("good token: status=%d body=%s", resp.StatusCode, raw)
	}

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/cart", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("reads must stay open: status=%d", resp.StatusCode)
	}
}

func TestCartAPI_Readyz(t *testing.T) {
	storage := kv.NewMemStore()
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage), Storage: storage}, cartd.HTTPDeps{})

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}
}

func TestCartAPI_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	storage := kv.NewMemStore()
	store := cart.NewStore(context.Background(), storage, cart.Options{Metrics: cart.NewMetrics(reg)})
	<-store.Loaded()

	ts := newCartTS(t, &cartd.Server{Store: store}, cartd.HTTPDeps{
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   "scrape",
	})

	doJSON(t, http.MethodPost, ts.URL+"/cart/items", map[string]any{"id": "1"}, nil)

	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("metrics without token: status=%d", resp.StatusCode)
	}

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, map[string]string{"Authorization": "Bearer scrape"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
	for _, want := range []string{
		`cart_mutations_total{op="add",result="ok"} 1`,
		`cart_items 1`,
		`http_requests_total{method="POST"`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestCartAPI_Stream(t *testing.T) {
	storage := kv.NewMemStore()
	ts := newCartTS(t, &cartd.Server{Store: newStore(t, storage)}, cartd.HTTPDeps{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/cart/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() []cart.Item {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				return decodeProducts(t, []byte(data))
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return nil
	}

	if p := next(); len(p) != 0 {
		t.Fatalf("initial snapshot=%+v", p)
	}

	client := cartd.NewClient(ts.URL, "")
	if _, err := client.AddToCart(ctx, cart.ItemInput{ID: "1", Title: "Shoe"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if p := next(); len(p) != 1 || p[0].ID != "1" {
		t.Fatalf("pushed snapshot=%+v", p)
	}
}

type slowLoadKV struct {
	kv.Store
	release chan struct{}
}

func (s slowLoadKV) Get(ctx context.Context, key string) (string, bool, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

func TestCartAPI_ContextErrorsWhileLoading(t *testing.T) {
	storage := slowLoadKV{Store: kv.NewMemStore(), release: make(chan struct{})}
	t.Cleanup(func() { close(storage.release) })

	s := &cartd.Server{Store: cart.NewStore(context.Background(), storage, cart.Options{Log: zap.NewNop()}), Log: zap.NewNop()}
	h := s.Routes()

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/cart/items/a/increment", nil).WithContext(expired)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("deadline: status=%d want=%d", rec.Code, http.StatusGatewayTimeout)
	}

	gone, cancelGone := context.WithCancel(context.Background())
	cancelGone()
	req = httptest.NewRequest(http.MethodPost, "/cart/items/a/increment", nil).WithContext(gone)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusGatewayTimeout || rec.Body.Len() != 0 {
		t.Fatalf("canceled: status=%d body=%q", rec.Code, rec.Body.String())
	}
}
