package domain

import "strings"

// DefaultGuestCartMaxItems bounds the number of distinct lines a browser-local cart may hold.
const DefaultGuestCartMaxItems = 50

type GuestCartItem struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// GuestCart is the pre-authentication cart kept in browser storage. MergeToken is generated
// client-side once per snapshot and makes merges idempotent.
type GuestCart struct {
	MergeToken string          `json:"mergeToken"`
	Items      []GuestCartItem `json:"items"`
}

// Normalized folds duplicate variant lines and trims ids, keeping first-seen order.
func (g GuestCart) Normalized() GuestCart {
	out := GuestCart{MergeToken: strings.TrimSpace(g.MergeToken)}
	index := make(map[string]int, len(g.Items))
	for _, it := range g.Items {
		id := strings.TrimSpace(it.VariantID)
		if pos, ok := index[id]; ok {
			out.Items[pos].Quantity += it.Quantity
			continue
		}
		index[id] = len(out.Items)
		out.Items = append(out.Items, GuestCartItem{VariantID: id, Quantity: it.Quantity})
	}
	return out
}

func (g GuestCart) Validate(maxItems int) error {
	if maxItems <= 0 {
		maxItems = DefaultGuestCartMaxItems
	}
	if strings.TrimSpace(g.MergeToken) == "" {
		return Validation("mergeToken required")
	}
	if len(g.Items) > maxItems {
		return Validation("guest cart holds %d items, limit is %d", len(g.Items), maxItems)
	}
	for _, it := range g.Items {
		if strings.TrimSpace(it.VariantID) == "" {
			return Validation("variantId required")
		}
		if it.Quantity <= 0 {
			return Validation("quantity must be positive")
		}
	}
	return nil
}
