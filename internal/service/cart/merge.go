package cart

import (
	"context"
	"errors"

	"cedar-commerce/internal/domain"
	cartrepo "cedar-commerce/internal/repository/cart"
)

// MergeResult reports how a guest cart was folded into the server cart. ClearGuestStore tells the
// client it may drop its local copy.
type MergeResult struct {
	View            *View             `json:"view"`
	AlreadyApplied  bool              `json:"alreadyApplied"`
	Adjusted        []MergeAdjustment `json:"adjusted"`
	Skipped         []MergeSkip       `json:"skipped"`
	ClearGuestStore bool              `json:"clearGuestStore"`
}

// MergeAdjustment is a line whose merged quantity was capped.
type MergeAdjustment struct {
	VariantID string `json:"variantId"`
	Requested int    `json:"requested"`
	Merged    int    `json:"merged"`
}

type MergeSkip struct {
	VariantID string `json:"variantId"`
	Reason    string `json:"reason"`
}

// Merge folds a guest cart into the caller's active cart for the profile. Replaying the same merge
// token returns the cart unchanged with AlreadyApplied set.
func (s *Service) Merge(ctx context.Context, user domain.UserContext, kind domain.ProfileType, guest domain.GuestCart) (*MergeResult, error) {
	guest = guest.Normalized()
	if err := guest.Validate(s.opts.GuestCartMaxItems); err != nil {
		return nil, err
	}

	if cartID, err := s.carts.MergeApplied(ctx, guest.MergeToken); err == nil {
		view, err := s.Get(ctx, user, cartID)
		if err != nil {
			return nil, err
		}
		return &MergeResult{View: view, AlreadyApplied: true, ClearGuestStore: true}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	cart, err := s.current(ctx, user, kind)
	if err != nil {
		return nil, err
	}

	res := &MergeResult{Adjusted: []MergeAdjustment{}, Skipped: []MergeSkip{}}
	lines := make([]cartrepo.MergeLine, 0, len(guest.Items))
	for _, it := range guest.Items {
		v, err := s.catalog.GetVariant(ctx, it.VariantID)
		if errors.Is(err, domain.ErrNotFound) {
			res.Skipped = append(res.Skipped, MergeSkip{VariantID: it.VariantID, Reason: string(domain.ReasonDeleted)})
			continue
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, cartrepo.MergeLine{
			VariantID:       v.ID,
			ProductID:       v.ProductID,
			Quantity:        it.Quantity,
			Stock:           v.Stock,
			PriceAtAddCents: v.PriceCents,
		})
	}

	merged, applied, err := s.carts.Merge(ctx, cart.ID, guest.MergeToken, lines)
	if err != nil {
		s.logger.Printf("cart: merge cart_id=%s error=%v", cart.ID, err)
		return nil, err
	}
	if !applied {
		// A concurrent request recorded the token first.
		res = &MergeResult{AlreadyApplied: true}
	}
	for _, m := range merged {
		if m.Merged < m.Requested {
			res.Adjusted = append(res.Adjusted, MergeAdjustment{VariantID: m.VariantID, Requested: m.Requested, Merged: m.Merged})
		}
	}
	view, err := s.reload(ctx, user, cart.ID)
	if err != nil {
		return nil, err
	}
	res.View = view
	res.ClearGuestStore = true
	s.logger.Printf("cart: merged cart_id=%s lines=%d adjusted=%d skipped=%d applied=%t", cart.ID, len(merged), len(res.Adjusted), len(res.Skipped), applied)
	return res, nil
}
