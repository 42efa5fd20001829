package domain

import "time"

type ProfileType string

const (
	ProfileIndividual ProfileType = "individual"
	ProfileBusiness   ProfileType = "business"
)

// ProfileRef points at exactly one shopping profile.
type ProfileRef struct {
	Type ProfileType `json:"type"`
	ID   string      `json:"id"`
}

type ConversionState string

const (
	CartActive           ConversionState = "active"
	CartConvertedToOrder ConversionState = "converted_to_order"
	CartConvertedToQuote ConversionState = "converted_to_quote"
)

// ConversionTarget is what a cart is submitted as.
type ConversionTarget string

const (
	TargetOrder ConversionTarget = "order"
	TargetQuote ConversionTarget = "quote"
)

// State returns the conversion state a cart ends in for the target.
func (t ConversionTarget) State() (ConversionState, error) {
	switch t {
	case TargetOrder:
		return CartConvertedToOrder, nil
	case TargetQuote:
		return CartConvertedToQuote, nil
	default:
		return "", Validation("unknown conversion target %q", t)
	}
}

type Cart struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customerId"`
	Profile         ProfileRef      `json:"profile"`
	Currency        string          `json:"currency"`
	LockedUntil     *time.Time      `json:"lockedUntil,omitempty"`
	ConversionState ConversionState `json:"conversionState"`
	ConversionRef   *string         `json:"conversionRef,omitempty"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Items           []CartItem      `json:"items"`
}

// CartItem never carries an authoritative price. PriceAtAddCents is informational and feeds
// price-change notices only.
type CartItem struct {
	ID              string    `json:"id"`
	CartID          string    `json:"cartId"`
	VariantID       string    `json:"variantId"`
	ProductID       string    `json:"productId"`
	Quantity        int       `json:"quantity"`
	PriceAtAddCents int64     `json:"priceAtAddCents"`
	AddedAt         time.Time `json:"addedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (c *Cart) IsActive() bool {
	return c.ConversionState == CartActive
}

// LockActive reports whether the checkout soft lock is still live at now. Expired locks count as absent.
func (c *Cart) LockActive(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

func (c *Cart) OwnedBy(u UserContext) bool {
	if u.IsGuest() || c.CustomerID != u.UserID {
		return false
	}
	switch c.Profile.Type {
	case ProfileBusiness:
		return c.Profile.ID == u.BusinessProfileID
	case ProfileIndividual:
		return c.Profile.ID == u.IndividualProfileID || c.Profile.ID == u.UserID
	}
	return false
}

func (c *Cart) Item(variantID string) *CartItem {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}
