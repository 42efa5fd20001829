package pricing

import (
	"cedar-commerce/internal/config"
	"cedar-commerce/internal/domain"
)

// Policy decides whether a caller may see computed prices at all.
type Policy struct {
	HideForGuests             bool
	HideForUnverifiedBusiness bool
}

func PolicyFromConfig(cfg config.Pricing) Policy {
	return Policy{
		HideForGuests:             cfg.HidePricesForGuests,
		HideForUnverifiedBusiness: cfg.HidePricesForUnverifiedBusiness,
	}
}

func (p Policy) CanSeePrice(u domain.UserContext) bool {
	switch {
	case u.IsGuest():
		return !p.HideForGuests
	case u.IsMerchant():
		return true
	case u.AccountType == domain.AccountBusiness && !u.Verified:
		return !p.HideForUnverifiedBusiness
	default:
		return true
	}
}
