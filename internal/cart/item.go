package cart

import (
	"encoding/json"
	"strings"
)

// StorageKey is the single key the cart is persisted under.
const StorageKey = "@chart"

type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ItemInput is an Item before it enters the cart; quantity is assigned by the store.
type ItemInput struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

func (in ItemInput) withQuantity(q int) Item {
	return Item{
		ID:       in.ID,
		Title:    in.Title,
		ImageURL: in.ImageURL,
		Price:    in.Price,
		Quantity: q,
	}
}

func encodeItems(items []Item) (string, error) {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeItems treats an empty payload (or JSON null) as an empty cart.
func decodeItems(raw string) ([]Item, error) {
	if strings.TrimSpace(raw) == "" {
		return []Item{}, nil
	}

	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func indexOf(items []Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func withAdjustedQuantity(items []Item, id string, delta int) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID == id {
			it.Quantity += delta
			if it.Quantity < 1 {
				it.Quantity = 1
			}
		}
		out = append(out, it)
	}
	return out
}
